// Package server exposes the service operations and the message relay over
// HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/engram-memory/engram/internal/bridge"
	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/parser"
	"github.com/engram-memory/engram/internal/relay"
	"github.com/engram-memory/engram/internal/service"
	"github.com/engram-memory/engram/internal/store"
)

// Server wires the service, relay broker, and outbound bridge into one router.
type Server struct {
	svc    *service.Service
	broker *relay.Broker
	bridge *bridge.Bridge
	log    *slog.Logger
}

// New creates a server.
func New(svc *service.Service, broker *relay.Broker, br *bridge.Bridge, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, broker: broker, bridge: br, log: log}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/transfer", s.handleTransfer)
	r.Post("/sessions/{id}/update", s.handleUpdateSession)
	r.Get("/retrieve", s.handleRetrieve)
	r.Post("/memories", s.handleStoreSingle)
	r.Get("/memories", s.handleQuery)
	r.Post("/memories/{key}/importance", s.handleAdjust)
	r.Post("/memories/importance", s.handleBatchAdjust)
	r.Post("/cleanup", s.handleCleanup)

	r.Get("/relay/ws", s.broker.ServeWS)
	r.Get("/relay/poll", s.broker.ServePoll)
	r.Post("/relay/send", s.broker.ServeSend)

	if s.bridge != nil {
		r.Post("/bridge/{endpoint}/complete", s.handleComplete)
	}

	return r
}

type errorResponse struct {
	Error       string `json:"error"`
	Remediation string `json:"remediation,omitempty"`
}

// writeError maps the taxonomy onto HTTP statuses and attaches remediation
// text where the failure is recoverable by the caller.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, parser.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:       err.Error(),
		Remediation: service.Remediation(err),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.svc.SubmitTransfer(r.Context(), req.Text, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var deltas service.SessionDeltas
	if err := json.NewDecoder(r.Body).Decode(&deltas); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.svc.UpdateSession(r.Context(), chi.URLParam(r, "id"), deltas)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Retrieve(r.Context(), service.RetrieveParams{
		SessionID:       q.Get("session"),
		Structured:      q.Get("structured") == "true",
		IncludeGuidance: q.Get("guidance") == "true",
		AgentName:       q.Get("agent"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleStoreSingle(w http.ResponseWriter, r *http.Request) {
	var p service.StoreSingleParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := s.svc.StoreSingle(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := store.QueryParams{
		SessionID: q.Get("session"),
		Text:      q.Get("text"),
	}
	if f := q.Get("family"); f != "" {
		p.Family = model.Family(f)
	}
	records, err := s.svc.Query(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Importance float64 `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.svc.AdjustImportance(r.Context(), key, req.Importance); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"updated": true})
}

func (s *Server) handleBatchAdjust(w http.ResponseWriter, r *http.Request) {
	var items []consolidate.AdjustItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.svc.BatchAdjust(r.Context(), items))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flags, err := s.svc.Cleanup(r.Context(), consolidate.CleanupParams{
		Dedup:      q.Get("dedup") != "false",
		Truncation: q.Get("truncation") != "false",
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if flags == nil {
		flags = []consolidate.Flag{}
	}
	writeJSON(w, flags)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := s.bridge.Complete(r.Context(), chi.URLParam(r, "endpoint"), payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}
