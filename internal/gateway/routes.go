package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /v1/interactions", s.handlePostInteraction)
	mux.HandleFunc("GET /v1/interactions/{id}", s.handleGetInteraction)
	mux.HandleFunc("POST /v1/feedback", s.handlePostFeedback)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/resolve", s.handleResolveConversation)
	mux.HandleFunc("GET /v1/escalations", s.handleListEscalations)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// readBody reads a request body capped by the body-limit middleware.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorShape{
				Code:    "payload_too_large",
				Message: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
			})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, ErrorShape{Code: "invalid_payload", Message: err.Error()})
		return nil, false
	}
	return raw, true
}

func (s *Server) serviceReady(w http.ResponseWriter) bool {
	if s.svc == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorShape{Code: "unavailable", Message: ErrNoService.Error()})
		return false
	}
	return true
}

func (s *Server) handlePostInteraction(w http.ResponseWriter, r *http.Request) {
	if !s.serviceReady(w) {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var req domain.InteractionRequest
	if err := s.schemas.decode(schemaInteraction, raw, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.svc.Handle(r.Context(), req)
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	if !s.serviceReady(w) {
		return
	}
	resp, err := s.svc.Interaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// FeedbackAccepted acknowledges a journaled feedback event.
type FeedbackAccepted struct {
	Status string `json:"status"`
	TurnID string `json:"turn_id"`
}

func (s *Server) handlePostFeedback(w http.ResponseWriter, r *http.Request) {
	if !s.serviceReady(w) {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var ev domain.FeedbackEvent
	if err := s.schemas.decode(schemaFeedback, raw, &ev); err != nil {
		writeError(w, err)
		return
	}
	ev.SubmittedAt = s.now().UTC()

	if err := s.svc.SubmitFeedback(r.Context(), ev); err != nil {
		s.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, FeedbackAccepted{Status: "accepted", TurnID: ev.TurnID})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.serviceReady(w) {
		return
	}
	conv, err := s.svc.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleResolveConversation(w http.ResponseWriter, r *http.Request) {
	if !s.serviceReady(w) {
		return
	}
	conv, err := s.svc.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// EscalationList is the open handoff queue.
type EscalationList struct {
	Escalations []domain.Handoff `json:"escalations"`
}

func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	if s.escalations == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorShape{Code: "handoff_disabled", Message: "human handoff queue is disabled"})
		return
	}
	open, err := s.escalations.ListOpen(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EscalationList{Escalations: open})
}

func (s *Server) logFailure(r *http.Request, err error) {
	status, shape := errorShape(err)
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).
		Str("path", r.URL.Path).
		Str("code", shape.Code).
		Str("requestId", RequestID(r.Context())).
		Msg("request failed")
}
