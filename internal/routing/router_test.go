package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/channel"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/orchestrator"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id      string
	kind    string
	sendErr error

	mu      sync.Mutex
	sent    []domain.OutboundMessage
	handler func(domain.InboundMessage)
}

func (m *mockChannel) ID() string                  { return m.id }
func (m *mockChannel) Kind() string                { return m.kind }
func (m *mockChannel) Start(context.Context) error { return nil }
func (m *mockChannel) Stop(context.Context) error  { return nil }
func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.sendErr
}
func (m *mockChannel) OnMessage(handler func(domain.InboundMessage)) { m.handler = handler }

func (m *mockChannel) outbox() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

type handlerFunc func(ctx context.Context, req domain.InteractionRequest) (*domain.UnifiedResponse, error)

func (f handlerFunc) Handle(ctx context.Context, req domain.InteractionRequest) (*domain.UnifiedResponse, error) {
	return f(ctx, req)
}

func echo(reqs chan<- domain.InteractionRequest) handlerFunc {
	return func(_ context.Context, req domain.InteractionRequest) (*domain.UnifiedResponse, error) {
		if reqs != nil {
			reqs <- req
		}
		return &domain.UnifiedResponse{InteractionID: "t-1", ResponseText: "re: " + req.Message}, nil
	}
}

func setup(t *testing.T, h Handler) (*Router, *mockChannel, *mockChannel) {
	t.Helper()
	reg := channel.NewRegistry(testLogger())
	irc := &mockChannel{id: "irc", kind: domain.ChannelChat}
	email := &mockChannel{id: "email", kind: domain.ChannelEmail}
	require.NoError(t, reg.Register(irc))
	require.NoError(t, reg.Register(email))
	return NewRouter(reg, h, time.Second, testLogger()), irc, email
}

func TestConversationID(t *testing.T) {
	dm := domain.InboundMessage{ChannelID: "irc", From: "Alice", ChatID: "Alice", ChatType: domain.ChatTypeDM}
	group := domain.InboundMessage{ChannelID: "irc", From: "Bob", ChatID: "#Support", ChatType: domain.ChatTypeGroup}

	assert.Equal(t, "irc:alice", ConversationID(dm))
	assert.Equal(t, "irc:#support:bob", ConversationID(group))

	other := group
	other.From = "carol"
	assert.NotEqual(t, ConversationID(group), ConversationID(other), "senders in one room stay separate")
}

func TestRequest(t *testing.T) {
	msg := domain.InboundMessage{ChannelID: "email", From: "jane@customer.org", ChatID: "jane@customer.org", ChatType: domain.ChatTypeDM, Body: "refund please"}
	assert.Equal(t, domain.InteractionRequest{
		ConversationID: "email:jane@customer.org",
		CustomerID:     "jane@customer.org",
		Channel:        domain.ChannelEmail,
		Message:        "refund please",
	}, Request(domain.ChannelEmail, msg))
}

func TestHandleInbound_RepliesThroughOrigin(t *testing.T) {
	reqs := make(chan domain.InteractionRequest, 1)
	r, irc, email := setup(t, echo(reqs))

	r.HandleInbound(context.Background(), domain.InboundMessage{
		ID: "m-1", ChannelID: "irc", From: "bob", ChatID: "#support", ChatType: domain.ChatTypeGroup, Body: "where is my order",
	})

	req := <-reqs
	assert.Equal(t, domain.ChannelChat, req.Channel)
	assert.Equal(t, "irc:#support:bob", req.ConversationID)

	assert.Equal(t, []domain.OutboundMessage{{
		ChannelID: "irc", To: "#support", Body: "re: where is my order", ReplyToID: "m-1",
	}}, irc.outbox())
	assert.Empty(t, email.outbox())
}

func TestHandleInbound_EmitsMessageReceived(t *testing.T) {
	r, _, _ := setup(t, echo(nil))
	hm := hooks.NewManager(testLogger())
	var got hooks.Payload
	hm.On(hooks.EventMessageReceived, "test", func(_ context.Context, p hooks.Payload) error {
		got = p
		return nil
	})
	r.SetHooks(hm)

	r.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "irc", From: "alice", ChatID: "alice", ChatType: domain.ChatTypeDM, Body: "hi"})
	hm.Wait()
	assert.Equal(t, "irc", got.String("channel"))
	assert.Equal(t, "irc:alice", got.String("conversationId"))
}

func TestHandleInbound_EmailKeepsSubject(t *testing.T) {
	r, _, email := setup(t, echo(nil))
	r.HandleInbound(context.Background(), domain.InboundMessage{
		ID: "<abc@x>", ChannelID: "email", From: "jane@customer.org", ChatID: "jane@customer.org",
		ChatType: domain.ChatTypeDM, Subject: "Refund", Body: "hi",
	})
	out := email.outbox()
	require.Len(t, out, 1)
	assert.Equal(t, "jane@customer.org", out[0].To)
	assert.Equal(t, "Refund", out[0].Subject)
	assert.Equal(t, "<abc@x>", out[0].ReplyToID)
}

func TestHandleInbound_PipelineFailureSendsFallback(t *testing.T) {
	r, irc, _ := setup(t, handlerFunc(func(context.Context, domain.InteractionRequest) (*domain.UnifiedResponse, error) {
		return nil, &orchestrator.PipelineError{Stage: domain.StageIntent, FallbackText: "Sorry, please try again shortly.", Err: orchestrator.ErrIntentUnavailable}
	}))
	r.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "irc", From: "alice", ChatID: "alice", ChatType: domain.ChatTypeDM, Body: "help"})

	out := irc.outbox()
	require.Len(t, out, 1)
	assert.Equal(t, "Sorry, please try again shortly.", out[0].Body)
	assert.Equal(t, "alice", out[0].To)
}

func TestHandleInbound_OtherErrorsSendNothing(t *testing.T) {
	r, irc, _ := setup(t, handlerFunc(func(context.Context, domain.InteractionRequest) (*domain.UnifiedResponse, error) {
		return nil, orchestrator.ErrContextStoreUnavailable
	}))
	r.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "irc", From: "alice", ChatID: "alice", ChatType: domain.ChatTypeDM, Body: "help"})
	r.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "sms", From: "alice", Body: "unknown channel"})
	assert.Empty(t, irc.outbox())
}

func TestHandleInbound_AppliesTimeout(t *testing.T) {
	r, _, _ := setup(t, handlerFunc(func(ctx context.Context, _ domain.InteractionRequest) (*domain.UnifiedResponse, error) {
		_, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("no deadline")
		}
		return &domain.UnifiedResponse{ResponseText: "ok"}, nil
	}))
	irc, _ := r.channels.Get("irc")
	r.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "irc", From: "a", ChatID: "a", ChatType: domain.ChatTypeDM, Body: "x"})
	assert.Len(t, irc.(*mockChannel).outbox(), 1)
}

func TestWire(t *testing.T) {
	r, irc, email := setup(t, echo(nil))
	r.Wire(context.Background())
	require.NotNil(t, irc.handler)
	require.NotNil(t, email.handler)

	irc.handler(domain.InboundMessage{ChannelID: "irc", From: "alice", ChatID: "alice", ChatType: domain.ChatTypeDM, Body: "one"})
	email.handler(domain.InboundMessage{ChannelID: "email", From: "j@c.org", ChatID: "j@c.org", ChatType: domain.ChatTypeDM, Body: "two"})
	r.Wait()

	require.Len(t, irc.outbox(), 1)
	require.Len(t, email.outbox(), 1)
	assert.Equal(t, "re: two", email.outbox()[0].Body)
}

func TestSendTo(t *testing.T) {
	r, irc, _ := setup(t, echo(nil))
	require.NoError(t, r.SendTo(context.Background(), "irc", "#support", "maintenance at noon"))
	assert.Equal(t, "#support", irc.outbox()[0].To)
	assert.Error(t, r.SendTo(context.Background(), "fax", "x", "y"))
}
