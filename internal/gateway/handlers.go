package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/feedback"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/orchestrator"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Clients  int             `json:"clients,omitempty"`
	UptimeMS int64           `json:"uptimeMs,omitempty"`
	Feedback *feedback.Stats `json:"feedback,omitempty"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorShape{
		Code:    "not_found",
		Message: "no route for " + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, shape := errorShape(err)
	writeJSON(w, status, shape)
}

// errorShape maps service errors onto an HTTP status and error body.
// Fatal pipeline failures never carry a partial response.
func errorShape(err error) (int, ErrorShape) {
	var (
		pe *orchestrator.PipelineError
		sv *SchemaViolation
	)
	switch {
	case errors.As(err, &sv):
		return http.StatusBadRequest, ErrorShape{Code: "invalid_payload", Message: sv.Error(), Details: sv.Issues}
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorShape{Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrTurnNotFound):
		return http.StatusNotFound, ErrorShape{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, ErrorShape{Code: "invalid_transition", Message: err.Error()}
	case orchestrator.IsRetryable(err):
		return http.StatusConflict, ErrorShape{Code: "context_conflict", Message: err.Error(), Retryable: true}
	case errors.As(err, &pe):
		return http.StatusServiceUnavailable, ErrorShape{
			Code:    "pipeline_failed",
			Message: "the request could not be processed",
			Details: map[string]any{
				"stage":         pe.Stage,
				"fallback_text": pe.FallbackText,
				"agent_logs":    pe.Logs,
			},
		}
	case errors.Is(err, orchestrator.ErrContextStoreUnavailable), errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, feedback.ErrStopped):
		return http.StatusServiceUnavailable, ErrorShape{Code: "unavailable", Message: "service unavailable", Retryable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorShape{Code: "timeout", Message: "request timed out", Retryable: true}
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrorShape{Code: "cancelled", Message: "request cancelled"}
	default:
		return http.StatusInternalServerError, ErrorShape{Code: "internal", Message: "internal error"}
	}
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx context.Context, rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Fail maps err the same way the REST surface does.
func (rc *RequestContext) Fail(err error) {
	status, shape := errorShape(err)
	if status >= http.StatusInternalServerError && shape.Code == "internal" {
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
	}
	rc.Client.RespondError(rc.Frame.ID, shape)
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
