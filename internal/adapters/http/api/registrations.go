package api

import (
	"context"
	"net/http"

	"github.com/okian/admit/internal/domain/intake"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// RegistrationDependencies covers the registration lifecycle.
type RegistrationDependencies interface {
	CreateRegistration(ctx context.Context, app intake.Application) (model.Registration, error)
	GetRegistration(ctx context.Context, id string) (model.RegistrationView, error)
	ListEvents(ctx context.Context, registrationID string) ([]model.Event, error)
	FinalizeConsensus(ctx context.Context, registrationID string) (model.Registration, error)
	Decide(ctx context.Context, registrationID string, status model.ApplicationStatus, actorID string) (model.Registration, error)
}

// RegistrationHandler handles /registrations requests.
type RegistrationHandler struct {
	deps RegistrationDependencies
	log  logger.Logger
}

// NewRegistrationHandler creates a new registration handler.
func NewRegistrationHandler(deps RegistrationDependencies) *RegistrationHandler {
	return &RegistrationHandler{deps: deps, log: logger.NewNop()}
}

// HandleCreate handles POST /registrations.
func (h *RegistrationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRegistrationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	app := intake.Application{ID: req.ID, HackathonID: req.HackathonID, ApplicantID: req.ApplicantID}
	if req.SubmittedAt != nil {
		app.SubmittedAt = *req.SubmittedAt
	}
	reg, err := h.deps.CreateRegistration(r.Context(), app)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.FromRegistration(reg))
}

// HandleGet handles GET /registrations/{id}.
func (h *RegistrationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetRegistration(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := types.RegistrationDetail{
		Registration:  types.FromRegistration(view.Registration),
		QueuePosition: view.QueuePosition,
	}
	if view.Belief != nil {
		b := types.FromBelief(*view.Belief)
		out.Belief = &b
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleEvents handles GET /registrations/{id}/events.
func (h *RegistrationHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.ListEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromEvents(events))
}

// HandleFinalize handles POST /registrations/{id}/finalize.
func (h *RegistrationHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	reg, err := h.deps.FinalizeConsensus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRegistration(reg))
}

// HandleDecision handles POST /registrations/{id}/decision. The status is
// parsed by the domain so unknown values fail as validation errors.
func (h *RegistrationHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req types.DecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	status, err := model.ParseApplicationStatus(req.Status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	reg, err := h.deps.Decide(r.Context(), r.PathValue("id"), status, req.ActorID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRegistration(reg))
}

