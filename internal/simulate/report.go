package simulate

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// render prints the head of the queue and the run summary to w.
func render(w io.Writer, cfg *Config, applicants map[string]Applicant, rep *Report, stats *Stats) {
	heading := color.New(color.FgCyan, color.Bold)
	_, _ = heading.Fprintf(w, "\nAcceptance queue for %s (top %d)\n", cfg.HackathonID, min(cfg.TopN, len(rep.Queue)))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Registration", "Applicant", "Grade", "Quality", "Mu", "Sigma²", "Prioritized"})
	for _, e := range rep.Queue[:min(cfg.TopN, len(rep.Queue))] {
		table.Append([]string{
			strconv.Itoa(e.Rank),
			e.RegistrationID,
			e.ApplicantID,
			e.Grade,
			string(applicants[e.RegistrationID].Quality),
			fmt.Sprintf("%.3f", e.Mu),
			fmt.Sprintf("%.3f", e.SigmaSquared),
			strconv.FormatBool(e.Prioritized),
		})
	}
	table.Render()

	_, _ = heading.Fprintln(w, "\nSummary")
	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Metric", "Value"})
	agreement := 0.0
	if stats.Graded > 0 {
		agreement = float64(rep.Agreement) / float64(stats.Graded) * 100
	}
	for _, row := range [][]string{
		{"Registrations", strconv.Itoa(stats.Seeded)},
		{"Graded", strconv.Itoa(stats.Graded)},
		{"Assignments", strconv.FormatInt(stats.Assignments, 10)},
		{"Reviews", strconv.FormatInt(stats.Reviews, 10)},
		{"Duplicates rejected", strconv.FormatInt(stats.DuplicateRejected, 10)},
		{"Busy retries", strconv.FormatInt(stats.Retries, 10)},
		{"Accepted", strconv.Itoa(stats.Accepted)},
		{"Consensus = quality", fmt.Sprintf("%.1f%%", agreement)},
		{"Duration", stats.Duration.String()},
	} {
		summary.Append(row)
	}
	summary.Render()

	if len(rep.Problems) == 0 {
		_, _ = color.New(color.FgGreen).Fprintln(w, "All invariants hold")
		return
	}
	bad := color.New(color.FgRed)
	_, _ = bad.Fprintf(w, "%d invariant violations\n", len(rep.Problems))
	for _, p := range rep.Problems {
		_, _ = bad.Fprintln(w, "  - "+p)
	}
}
