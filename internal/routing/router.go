// Package routing connects messaging channels to the orchestration service.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/channel"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/orchestrator"
)

// Handler runs one customer message through the pipeline.
type Handler interface {
	Handle(ctx context.Context, req domain.InteractionRequest) (*domain.UnifiedResponse, error)
}

// Router routes inbound channel messages to the service and replies
// through the originating channel.
type Router struct {
	channels *channel.Registry
	svc      Handler
	timeout  time.Duration
	hooks    hooks.Emitter
	log      *logging.Logger

	inflight sync.WaitGroup
}

// NewRouter creates a message router. timeout bounds each message; zero
// means no limit.
func NewRouter(channels *channel.Registry, svc Handler, timeout time.Duration, log *logging.Logger) *Router {
	return &Router{
		channels: channels,
		svc:      svc,
		timeout:  timeout,
		log:      log.Sub("routing"),
	}
}

// SetHooks publishes message_received for every routed message.
func (r *Router) SetHooks(e hooks.Emitter) { r.hooks = e }

// Request builds the interaction request for an inbound message.
func Request(kind string, msg domain.InboundMessage) domain.InteractionRequest {
	return domain.InteractionRequest{
		ConversationID: ConversationID(msg),
		CustomerID:     msg.From,
		Channel:        kind,
		Message:        msg.Body,
	}
}

// HandleInbound runs msg through the service and sends the reply back
// through the channel it came from. A fatal pipeline failure still answers
// the customer with the fallback text.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	log := r.log.With("channel", msg.ChannelID)
	log.Info().
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Str("chatType", string(msg.ChatType)).
		Msg("routing inbound message")

	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		log.Error().Msg("channel not found for inbound message")
		return
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := Request(ch.Kind(), msg)
	if r.hooks != nil {
		r.hooks.EmitAsync(context.WithoutCancel(ctx), req.ConversationID, hooks.EventMessageReceived, map[string]any{
			"channel":        msg.ChannelID,
			"from":           msg.From,
			"conversationId": req.ConversationID,
		})
	}
	start := time.Now()
	resp, err := r.svc.Handle(ctx, req)

	var body string
	var pe *orchestrator.PipelineError
	switch {
	case err == nil:
		body = resp.ResponseText
	case errors.As(err, &pe):
		log.Error().Err(err).Str("conversationId", req.ConversationID).Msg("pipeline failed, sending fallback")
		body = pe.FallbackText
	default:
		log.Error().Err(err).Str("conversationId", req.ConversationID).Msg("interaction failed")
		return
	}
	if strings.TrimSpace(body) == "" {
		log.Warn().Str("conversationId", req.ConversationID).Msg("empty reply, nothing sent")
		return
	}

	reply := domain.OutboundMessage{
		ChannelID: msg.ChannelID,
		To:        replyTarget(msg),
		Subject:   msg.Subject,
		Body:      body,
		ReplyToID: msg.ID,
	}
	if err := ch.Send(ctx, reply); err != nil {
		log.Error().Err(err).Str("to", reply.To).Msg("failed to send reply")
		return
	}

	ev := log.Info().
		Str("to", reply.To).
		Str("conversationId", req.ConversationID).
		Dur("duration", time.Since(start))
	if resp != nil {
		ev = ev.Str("interactionId", resp.InteractionID).Bool("escalated", resp.EscalationFlag)
	}
	ev.Msg("reply sent")
}

// Wire registers the router as the message handler on every channel.
// Messages are handled concurrently under ctx; Wait blocks until all of
// them have finished.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(ctx, msg)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Wait blocks until every in-flight message has been handled.
func (r *Router) Wait() { r.inflight.Wait() }

// SendTo sends a message to a specific channel.
func (r *Router) SendTo(ctx context.Context, channelID, target, body string) error {
	ch, ok := r.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	return ch.Send(ctx, domain.OutboundMessage{
		ChannelID: channelID,
		To:        target,
		Body:      body,
	})
}
