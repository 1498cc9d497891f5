package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// AcceptanceDependencies covers the acceptance queue and belief
// administration.
type AcceptanceDependencies interface {
	NextToAccept(ctx context.Context, hackathonID string, limit int) ([]model.Ranked, error)
	ExpireOverdueRsvps(ctx context.Context) ([]string, error)
	SetPrioritized(ctx context.Context, key model.BeliefKey, prioritized bool, actorID string) (model.ApplicantBelief, error)
	ResetBelief(ctx context.Context, key model.BeliefKey, actorID string) (model.ApplicantBelief, error)
}

// defaultQueueLimit applies when the request has no limit. Range checks
// belong to the acceptance service.
const defaultQueueLimit = 10

// AcceptanceHandler handles the acceptance queue, RSVP expiry and belief
// overrides.
type AcceptanceHandler struct {
	deps AcceptanceDependencies
	log  logger.Logger
}

// NewAcceptanceHandler creates a new acceptance handler.
func NewAcceptanceHandler(deps AcceptanceDependencies) *AcceptanceHandler {
	return &AcceptanceHandler{deps: deps, log: logger.NewNop()}
}

// HandleQueue handles GET /acceptance/queue?hackathon_id=&limit=.
func (h *AcceptanceHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultQueueLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.log, fmt.Errorf("%w: limit must be an integer", ErrBadRequest))
			return
		}
		limit = n
	}
	ranked, err := h.deps.NextToAccept(r.Context(), q.Get("hackathon_id"), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRanked(ranked))
}

// HandleExpire handles POST /rsvp/expire.
func (h *AcceptanceHandler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	ids, err := h.deps.ExpireOverdueRsvps(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, types.ExpireResult{Expired: ids})
}

// HandleSetPrioritized handles PUT /beliefs/{hackathon_id}/{applicant_id}/prioritized.
func (h *AcceptanceHandler) HandleSetPrioritized(w http.ResponseWriter, r *http.Request) {
	var req types.PriorityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	b, err := h.deps.SetPrioritized(r.Context(), beliefKey(r), req.Prioritized, req.ActorID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromBelief(b))
}

// HandleResetBelief handles POST /beliefs/{hackathon_id}/{applicant_id}/reset.
func (h *AcceptanceHandler) HandleResetBelief(w http.ResponseWriter, r *http.Request) {
	var req types.ActorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	b, err := h.deps.ResetBelief(r.Context(), beliefKey(r), req.ActorID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromBelief(b))
}

func beliefKey(r *http.Request) model.BeliefKey {
	return model.BeliefKey{HackathonID: r.PathValue("hackathon_id"), ApplicantID: r.PathValue("applicant_id")}
}
