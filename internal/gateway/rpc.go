package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// safeConfigPrefixes lists config path prefixes readable over RPC.
// Credentials live elsewhere in the tree and are never exposed.
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"escalation",
	"pipeline",
	"feedback",
	"knowledge",
	"handoff",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("interaction.send", s.rpcInteractionSend)
	s.Handle("interaction.get", s.rpcInteractionGet)
	s.Handle("feedback.submit", s.rpcFeedbackSubmit)
	s.Handle("conversation.get", s.rpcConversationGet)
	s.Handle("conversation.resolve", s.rpcConversationResolve)
	s.Handle("escalations.list", s.rpcEscalationsList)
}

func (s *Server) rpcHealth(_ context.Context, rc *RequestContext) {
	h := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Clients:  s.clients.Count(),
		UptimeMS: time.Since(s.startedAt).Milliseconds(),
	}
	if s.feedbackStats != nil {
		st := s.feedbackStats()
		h.Feedback = &st
	}
	rc.Respond(h)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(_ context.Context, rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

func (s *Server) rpcChannelsStatus(_ context.Context, rc *RequestContext) {
	if s.channels != nil {
		rc.Respond(map[string]any{"channels": s.channels.Status()})
		return
	}
	rc.Respond(map[string]any{"channels": []domain.ChannelStatus{}})
}

func (s *Server) rpcInteractionSend(ctx context.Context, rc *RequestContext) {
	if s.svc == nil {
		rc.RespondError("unavailable", ErrNoService.Error())
		return
	}
	var req domain.InteractionRequest
	if err := s.schemas.decode(schemaInteraction, rc.Frame.Params, &req); err != nil {
		rc.Fail(err)
		return
	}
	resp, err := s.svc.Handle(ctx, req)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(resp)
}

type idParams struct {
	ID string `json:"id"`
}

// idParam reads {"id": "..."} and reports a missing id to the caller.
func idParam(rc *RequestContext) (string, bool) {
	var p idParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return "", false
	}
	if p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return "", false
	}
	return p.ID, true
}

func (s *Server) rpcInteractionGet(ctx context.Context, rc *RequestContext) {
	if s.svc == nil {
		rc.RespondError("unavailable", ErrNoService.Error())
		return
	}
	id, ok := idParam(rc)
	if !ok {
		return
	}
	resp, err := s.svc.Interaction(ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(resp)
}

func (s *Server) rpcFeedbackSubmit(ctx context.Context, rc *RequestContext) {
	if s.svc == nil {
		rc.RespondError("unavailable", ErrNoService.Error())
		return
	}
	var ev domain.FeedbackEvent
	if err := s.schemas.decode(schemaFeedback, rc.Frame.Params, &ev); err != nil {
		rc.Fail(err)
		return
	}
	ev.SubmittedAt = s.now().UTC()
	if err := s.svc.SubmitFeedback(ctx, ev); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(FeedbackAccepted{Status: "accepted", TurnID: ev.TurnID})
}

func (s *Server) rpcConversationGet(ctx context.Context, rc *RequestContext) {
	if s.svc == nil {
		rc.RespondError("unavailable", ErrNoService.Error())
		return
	}
	id, ok := idParam(rc)
	if !ok {
		return
	}
	conv, err := s.svc.Conversation(ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(conv)
}

func (s *Server) rpcConversationResolve(ctx context.Context, rc *RequestContext) {
	if s.svc == nil {
		rc.RespondError("unavailable", ErrNoService.Error())
		return
	}
	id, ok := idParam(rc)
	if !ok {
		return
	}
	conv, err := s.svc.Resolve(ctx, id)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(conv)
}

func (s *Server) rpcEscalationsList(ctx context.Context, rc *RequestContext) {
	if s.escalations == nil {
		rc.RespondError(CodeHandoffDisabled, "human handoff queue is disabled")
		return
	}
	open, err := s.escalations.ListOpen(ctx)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(EscalationList{Escalations: open})
}
