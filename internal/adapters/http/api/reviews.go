package api

import (
	"context"
	"net/http"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/internal/domain/workflow"
	"github.com/okian/admit/pkg/logger"
)

// ReviewDependencies covers reviewer work.
type ReviewDependencies interface {
	NextAssignment(ctx context.Context, hackathonID, reviewerID string) (model.Assignment, bool, error)
	SubmitReview(ctx context.Context, sub workflow.Submission) (workflow.Outcome, error)
	ReviewerStats(ctx context.Context, reviewerID string) (model.ReviewerStats, error)
}

// ReviewHandler handles assignment and review requests.
type ReviewHandler struct {
	deps ReviewDependencies
	log  logger.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps ReviewDependencies) *ReviewHandler {
	return &ReviewHandler{deps: deps, log: logger.NewNop()}
}

// HandleNextAssignment handles POST /assignments. No available work is a
// 200 with assigned=false.
func (h *ReviewHandler) HandleNextAssignment(w http.ResponseWriter, r *http.Request) {
	var req types.AssignmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	a, ok, err := h.deps.NextAssignment(r.Context(), req.HackathonID, req.ReviewerID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := types.AssignmentResult{Assigned: ok}
	if ok {
		wire := types.FromAssignment(a)
		out.Assignment = &wire
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSubmit handles POST /reviews.
func (h *ReviewHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.ReviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	grade, err := model.ParseGrade(req.Grade)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.deps.SubmitReview(r.Context(), workflow.Submission{
		RegistrationID: req.RegistrationID,
		ReviewerID:     req.ReviewerID,
		Grade:          grade,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.ReviewOutcome{
		Review:       types.FromReview(res.Review),
		Registration: types.FromRegistration(res.Registration),
		Belief:       types.FromBelief(res.Belief),
		Stats:        types.FromStats(res.Stats),
		Graded:       res.Graded,
	})
}

// HandleReviewerStats handles GET /reviewers/{id}/stats.
func (h *ReviewHandler) HandleReviewerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.ReviewerStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromStats(stats))
}
