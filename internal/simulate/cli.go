package simulate

import (
	"os"
)

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Admit review-load simulator
===========================

Seeds registrations into a running admit service, lets concurrent reviewers
grade them through the HTTP API, verifies the engine's invariants and prints
the acceptance queue.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -hackathon string    Hackathon id (default: generated)
  -applicants int      Registrations to seed (default 200)
  -reviewers int       Concurrent reviewers (default 8)
  -reviews int         Reviews per registration; must match the service (default 3)
  -noise float         Probability a reviewer misjudges by one grade (default 0.2)
  -seed uint           Random seed (default: from the clock)
  -top int             Queue entries to print (default 20)
  -accept int          Head-of-queue applicants to accept (default 5)
  -timeout duration    HTTP request timeout (default 10s)
  -verbose             Log progress every second
  -help                Show this help message

Examples:
  go run ./cmd/simulate -applicants 1000 -reviewers 32
  go run ./cmd/simulate -url http://localhost:8080 -noise 0 -accept 0
`)
}
