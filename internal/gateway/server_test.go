package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventConnectChallenge, challenge.Event)
	return conn
}

func connectParams(token string, events ...string) ConnectParams {
	return ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "agent-console", Version: "1.0.0", Platform: "linux"},
		Auth:        &ConnectAuth{Token: token},
		Events:      events,
	}
}

// connect completes the handshake and waits until the server has
// registered the client.
func (e *testEnv) connect(t *testing.T, events ...string) *websocket.Conn {
	t.Helper()
	before := e.srv.clients.Count()
	conn := e.dial(t)

	req, err := NewRequest("hello", "connect", connectParams(testToken, events...))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "handshake rejected: %+v", resp.Error)

	require.Eventually(t, func() bool { return e.srv.clients.Count() > before }, time.Second, 5*time.Millisecond)
	return conn
}

// call sends a request and returns its response, skipping pushed events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

// nextEvent reads frames until the named event arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent && f.Event == event {
			return f
		}
	}
}

func payload[T any](t *testing.T, f Frame) T {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error: %+v", f.Error)
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func TestWebSocketHandshake(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	req, _ := NewRequest("req-1", "connect", connectParams(testToken))
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "req-1", resp.ID)
	hello := payload[HelloOK](t, resp)
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "interaction.send")
	assert.Contains(t, hello.Features.Events, EventEscalationTriggered)
	assert.Equal(t, int(defaultMaxPayload), hello.Policy.MaxPayload)
}

func TestWebSocketHandshake_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params ConnectParams
		code   string
	}{
		{"wrong token", "connect", connectParams("wrong-token"), "unauthorized"},
		{"protocol too new", "connect", ConnectParams{MinProtocol: 2, MaxProtocol: 3, Auth: &ConnectAuth{Token: testToken}}, "protocol_mismatch"},
		{"not a connect", "health", connectParams(testToken), "protocol_error"},
		{"unknown subscription", "connect", ConnectParams{MinProtocol: 1, MaxProtocol: 1, Auth: &ConnectAuth{Token: testToken}, Events: []string{"turn.committed"}}, "invalid_params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			conn := env.dial(t)

			req, _ := NewRequest("req-1", tt.method, tt.params)
			require.NoError(t, conn.WriteJSON(req))

			var resp Frame
			require.NoError(t, conn.ReadJSON(&resp))
			require.NotNil(t, resp.OK)
			assert.False(t, *resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Zero(t, env.srv.clients.Count())
		})
	}
}

func TestWebSocketRPC_Health(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	health := payload[HealthResponse](t, call(t, conn, "req-1", "health", nil))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	require.NotNil(t, health.Feedback)
}

func TestWebSocketRPC_ConfigGet(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	got := payload[map[string]any](t, call(t, conn, "req-1", "config.get", configGetParams{Key: "gateway.port"}))
	assert.Equal(t, float64(18790), got["value"])

	got = payload[map[string]any](t, call(t, conn, "req-2", "config.get", configGetParams{Key: "escalation.sentimentThreshold"}))
	assert.Equal(t, -0.5, got["value"])

	for id, tc := range map[string]struct{ key, code string }{
		"req-3": {"gateway.auth.token", "forbidden"},
		"req-4": {"", "invalid_params"},
		"req-5": {"logging.level", "not_found"},
	} {
		f := call(t, conn, id, "config.get", configGetParams{Key: tc.key})
		require.NotNil(t, f.Error, tc.key)
		assert.Equal(t, tc.code, f.Error.Code, tc.key)
	}
}

func TestWebSocketRPC_UnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	f := call(t, conn, "req-1", "chat.send", nil)
	require.NotNil(t, f.Error)
	assert.Equal(t, "method_not_found", f.Error.Code)
}

func TestWebSocketRPC_ConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	resp := payload[domain.UnifiedResponse](t, call(t, conn, "req-1", "interaction.send",
		interaction("c-ws", "I want to speak to a human agent now")))
	assert.True(t, resp.EscalationFlag)

	got := payload[domain.UnifiedResponse](t, call(t, conn, "req-2", "interaction.get", idParams{ID: resp.InteractionID}))
	assert.Equal(t, resp.InteractionID, got.InteractionID)

	env.hooks.Wait()
	list := payload[EscalationList](t, call(t, conn, "req-3", "escalations.list", nil))
	require.Len(t, list.Escalations, 1)

	conv := payload[domain.Conversation](t, call(t, conn, "req-4", "conversation.resolve", idParams{ID: "c-ws"}))
	assert.Equal(t, domain.StateResolved, conv.EscalationState)

	conv = payload[domain.Conversation](t, call(t, conn, "req-5", "conversation.get", idParams{ID: "c-ws"}))
	assert.Len(t, conv.Turns, 1)

	ack := payload[FeedbackAccepted](t, call(t, conn, "req-6", "feedback.submit",
		map[string]any{"turn_id": resp.InteractionID, "csat_score": 5}))
	assert.Equal(t, "accepted", ack.Status)

	f := call(t, conn, "req-7", "interaction.send", map[string]any{"conversation_id": "c-ws"})
	require.NotNil(t, f.Error)
	assert.Equal(t, "invalid_payload", f.Error.Code)

	f = call(t, conn, "req-8", "conversation.get", idParams{})
	require.NotNil(t, f.Error)
	assert.Equal(t, "invalid_params", f.Error.Code)

	f = call(t, conn, "req-9", "conversation.get", idParams{ID: "missing"})
	require.NotNil(t, f.Error)
	assert.Equal(t, "not_found", f.Error.Code)
}

func TestWebSocketRPC_ChannelsStatus(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	got := payload[map[string][]domain.ChannelStatus](t, call(t, conn, "req-1", "channels.status", nil))
	assert.Empty(t, got["channels"])
}

func TestWebSocketEvents_PushedToSubscribers(t *testing.T) {
	env := newTestEnv(t)
	watcher := env.connect(t, EventEscalationTriggered, EventConversationResolved)

	resp := env.do(t, http.MethodPost, "/v1/interactions", interaction("c-ev", "I want to speak to a human agent now"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := nextEvent(t, watcher, EventEscalationTriggered)
	var data map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &data))
	assert.Equal(t, "c-ev", data["conversationId"])
	assert.NotEmpty(t, data["reason"])
	assert.Positive(t, ev.Seq)

	env.do(t, http.MethodPost, "/v1/conversations/c-ev/resolve", nil)
	resolved := nextEvent(t, watcher, EventConversationResolved)
	assert.Greater(t, resolved.Seq, ev.Seq)
}

func TestWebSocketEvents_Filtered(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, EventFeedbackProcessed)

	assert.Zero(t, env.srv.Broadcast(EventEscalationTriggered, map[string]any{}))
	assert.Equal(t, 1, env.srv.Broadcast(EventFeedbackProcessed, map[string]any{}))
}

func TestServerClose_DisconnectsClients(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t)

	env.srv.Close()
	env.srv.Close()
	assert.Zero(t, env.srv.clients.Count())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
