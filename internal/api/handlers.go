package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/events"
	"github.com/openclaw/smartroute/internal/quota"
	"github.com/openclaw/smartroute/internal/selector"
	"github.com/openclaw/smartroute/internal/store"
)

// RouteRequest is the decision request body.
type RouteRequest struct {
	Request analyzer.Request `json:"request"`
	Options selector.Options `json:"options,omitempty"`
}

// RouteResponse pairs the selection with the caller's quota state.
type RouteResponse struct {
	Selection selector.Selection `json:"selection"`
	Quota     *quota.Status      `json:"quota,omitempty"`
}

// handleRoute is the primary path: quota-gated analyze + select + persist.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Request.Prompt == "" {
		s.respondError(w, http.StatusBadRequest, "request.prompt required")
		return
	}

	qs, err := s.gate.Consume(r.Context(), owner)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.respondJSON(w, http.StatusTooManyRequests, RouteResponse{Quota: qs})
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req.Options.DryRun = false
	a := s.analyzer.Analyze(req.Request)
	sel := s.selector.Select(r.Context(), owner, a, req.Options)

	s.bus.Publish(events.Event{Kind: events.KindDecision, Owner: owner, Payload: sel})

	s.respondJSON(w, http.StatusOK, RouteResponse{Selection: sel, Quota: qs})
}

// handleTest scores a selection without consuming quota or persisting
// anything: identical inputs and history yield identical answers.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Request.Prompt == "" {
		s.respondError(w, http.StatusBadRequest, "request.prompt required")
		return
	}

	req.Options.DryRun = true
	a := s.analyzer.Analyze(req.Request)
	sel := s.selector.Select(r.Context(), owner, a, req.Options)
	s.respondJSON(w, http.StatusOK, RouteResponse{Selection: sel})
}

// OutcomeRequest reports how a routed request actually went.
type OutcomeRequest struct {
	DecisionID string `json:"decisionId"`
	store.Outcome
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DecisionID == "" {
		s.respondError(w, http.StatusBadRequest, "decisionId required")
		return
	}

	d, err := s.learner.ReportOutcome(r.Context(), owner, req.DecisionID, req.Outcome)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "decision not found")
		return
	case errors.Is(err, store.ErrOutcomeReported):
		s.respondError(w, http.StatusConflict, "outcome already reported")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.bus.Publish(events.Event{Kind: events.KindOutcome, Owner: owner, Payload: d})
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	stats, err := s.store.Stats(r.Context(), owner)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	perf, err := s.store.ListPerformance(r.Context(), owner)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := s.store.RecentComplexities(r.Context(), owner, 50)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"stats":            stats,
		"performance":      perf,
		"recentComplexity": recent,
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	patterns, err := s.store.ListPatterns(r.Context(), owner)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if patterns == nil {
		patterns = []*store.Pattern{}
	}
	s.respondJSON(w, http.StatusOK, patterns)
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	report, err := s.learner.Savings(r.Context(), owner, days)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.catalog.Models)
}

func (s *Server) handleLicense(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	st, err := s.gate.Check(r.Context(), owner)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handlePaymentLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	s.respondJSON(w, http.StatusOK, s.gate.Quote(owner))
}

// PaymentVerifyRequest carries the claimed transaction hash.
type PaymentVerifyRequest struct {
	TxHash string `json:"txHash"`
}

func (s *Server) handlePaymentVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	owner, ok := ownerParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	var req PaymentVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	token, st, err := s.gate.Subscribe(r.Context(), owner, req.TxHash)
	if err != nil {
		s.respondError(w, http.StatusPaymentRequired, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"license": token,
		"quota":   st,
	})
}
