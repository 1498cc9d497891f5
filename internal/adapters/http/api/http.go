// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RegistrationDependencies
	ReviewDependencies
	AcceptanceDependencies
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	statsHandler        *StatsHandler
	registrationHandler *RegistrationHandler
	reviewHandler       *ReviewHandler
	acceptanceHandler   *AcceptanceHandler
	log                 logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		statsHandler:        NewStatsHandler(statsProvider),
		registrationHandler: NewRegistrationHandler(deps),
		reviewHandler:       NewReviewHandler(deps),
		acceptanceHandler:   NewAcceptanceHandler(deps),
		log:                 logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registrationHandler.log = s.log
	s.reviewHandler.log = s.log
	s.acceptanceHandler.log = s.log
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	handle("GET /healthz", "healthz", HandleHealth)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)

	handle("POST /registrations", "registrations", s.registrationHandler.HandleCreate)
	handle("GET /registrations/{id}", "registration", s.registrationHandler.HandleGet)
	handle("GET /registrations/{id}/events", "registration_events", s.registrationHandler.HandleEvents)
	handle("POST /registrations/{id}/finalize", "registration_finalize", s.registrationHandler.HandleFinalize)
	handle("POST /registrations/{id}/decision", "registration_decision", s.registrationHandler.HandleDecision)

	handle("POST /assignments", "assignments", s.reviewHandler.HandleNextAssignment)
	handle("POST /reviews", "reviews", s.reviewHandler.HandleSubmit)
	handle("GET /reviewers/{id}/stats", "reviewer_stats", s.reviewHandler.HandleReviewerStats)

	handle("GET /acceptance/queue", "acceptance_queue", s.acceptanceHandler.HandleQueue)
	handle("POST /rsvp/expire", "rsvp_expire", s.acceptanceHandler.HandleExpire)
	handle("PUT /beliefs/{hackathon_id}/{applicant_id}/prioritized", "belief_prioritized", s.acceptanceHandler.HandleSetPrioritized)
	handle("POST /beliefs/{hackathon_id}/{applicant_id}/reset", "belief_reset", s.acceptanceHandler.HandleResetBelief)
}

// decode reads a JSON body strictly.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status err's kind maps to. Internal errors
// are logged and their text withheld.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}
