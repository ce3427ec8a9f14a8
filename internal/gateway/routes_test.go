package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/agent"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/escalation"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/feedback"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/handoff"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/hooks"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/orchestrator"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/plugin"
)

const testToken = "test-token-123"

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	hooks *hooks.Manager
	queue *handoff.MemoryQueue
	fb    *feedback.Dispatcher
}

// newTestEnv runs the gateway over a real service with local agents and
// in-memory stores.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: "token", Token: testToken}
	for _, m := range mutate {
		m(&cfg)
	}
	log := testLog()

	hm := hooks.NewManager(log)
	q := handoff.NewMemoryQueue()
	plugins := plugin.NewRegistry(hm, log)
	require.NoError(t, plugins.Register(handoff.New(q)))
	require.NoError(t, plugins.InitAll(context.Background()))
	t.Cleanup(plugins.CloseAll)

	fbStore := feedback.NewMemoryStore()
	fb := feedback.NewDispatcher(cfg.Feedback, time.Second, agent.NewLocalAnalytics(), fbStore, fbStore, log)
	fb.SetHooks(hm)
	fb.Start(context.Background())
	t.Cleanup(func() { _ = fb.Stop(context.Background()) })
	t.Cleanup(hm.Wait)

	exec := orchestrator.NewExecutor(agent.NewLocalSet(agent.NewMemoryKnowledge(), 3), cfg.Pipeline, 3, log)
	svc := orchestrator.NewService(orchestrator.NewMemoryContextStore(), exec,
		escalation.NewPolicyHolder(cfg.Escalation.Policy()), log,
		orchestrator.WithHooks(hm), orchestrator.WithFeedback(fb), orchestrator.WithAnalytics(fbStore))

	raw := map[string]any{
		"gateway": map[string]any{
			"port": 18790,
			"auth": map[string]any{"token": testToken},
		},
		"escalation": map[string]any{"sentimentThreshold": -0.5},
	}
	srv, err := New(cfg, log,
		WithService(svc),
		WithEscalations(q),
		WithHooks(hm),
		WithFeedbackStats(fb.Stats),
		WithConfigRaw(raw),
	)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, hooks: hm, queue: q, fb: fb}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func interaction(conv, msg string) map[string]any {
	return map[string]any{
		"conversation_id": conv,
		"customer_id":     "cust-" + conv,
		"channel":         domain.ChannelChat,
		"message":         msg,
	}
}

func TestREST_HealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version, "public endpoint only reports status")
}

func TestREST_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/v1/interactions", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/v1/escalations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "token_mismatch", decode[ErrorShape](t, resp2).Message)
}

func TestREST_InteractionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/interactions", interaction("c-1", "I want to speak to a human agent now"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[domain.UnifiedResponse](t, resp)
	assert.Equal(t, "c-1", out.ConversationID)
	assert.True(t, out.EscalationFlag)
	require.NotNil(t, out.EscalationReason)
	assert.NotEmpty(t, out.ResponseText)

	resp = env.do(t, http.MethodGet, "/v1/interactions/"+out.InteractionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[domain.UnifiedResponse](t, resp)
	assert.Equal(t, out.InteractionID, again.InteractionID)
	assert.Equal(t, out.ResponseText, again.ResponseText)

	env.hooks.Wait()
	resp = env.do(t, http.MethodGet, "/v1/escalations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[EscalationList](t, resp)
	require.Len(t, list.Escalations, 1)
	assert.Equal(t, out.InteractionID, list.Escalations[0].TurnID)

	resp = env.do(t, http.MethodGet, "/v1/conversations/c-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.StateEscalated, decode[domain.Conversation](t, resp).EscalationState)

	resp = env.do(t, http.MethodPost, "/v1/conversations/c-1/resolve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decode[domain.Conversation](t, resp)
	assert.Equal(t, domain.StateResolved, resolved.EscalationState)
	assert.Zero(t, resolved.UnresolvedTurns)

	env.hooks.Wait()
	resp = env.do(t, http.MethodGet, "/v1/escalations", nil)
	assert.Empty(t, decode[EscalationList](t, resp).Escalations)

	resp = env.do(t, http.MethodPost, "/v1/conversations/c-1/resolve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decode[ErrorShape](t, resp).Code)
}

func TestREST_Feedback(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/interactions", interaction("c-2", "I was charged twice on my bill"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[domain.UnifiedResponse](t, resp)

	resp = env.do(t, http.MethodPost, "/v1/feedback", map[string]any{
		"turn_id": out.InteractionID, "csat_score": 4, "comment": "quick and helpful",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, FeedbackAccepted{Status: "accepted", TurnID: out.InteractionID}, decode[FeedbackAccepted](t, resp))

	require.Eventually(t, func() bool {
		r := env.do(t, http.MethodGet, "/v1/interactions/"+out.InteractionID, nil)
		got := decode[domain.UnifiedResponse](t, r)
		return got.FeedbackAnalysis != nil && got.FeedbackAnalysis.CSATScore != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp = env.do(t, http.MethodPost, "/v1/feedback", map[string]any{"turn_id": "t-missing", "csat_score": 3})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestREST_SchemaViolations(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body any
		at   string
	}{
		{"missing message", "/v1/interactions", map[string]any{"conversation_id": "c", "customer_id": "u", "channel": "chat"}, "/"},
		{"unknown channel", "/v1/interactions", map[string]any{"conversation_id": "c", "customer_id": "u", "channel": "fax", "message": "hi"}, "/channel"},
		{"unknown field", "/v1/interactions", map[string]any{"conversation_id": "c", "customer_id": "u", "channel": "chat", "message": "hi", "priority": 1}, "/"},
		{"csat out of range", "/v1/feedback", map[string]any{"turn_id": "t", "csat_score": 9}, "/csat_score"},
		{"not json", "/v1/feedback", "{", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var shape struct {
				Code    string        `json:"code"`
				Details []SchemaIssue `json:"details"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&shape))
			assert.Equal(t, "invalid_payload", shape.Code)
			require.NotEmpty(t, shape.Details)
			paths := make([]string, 0, len(shape.Details))
			for _, d := range shape.Details {
				paths = append(paths, d.Path)
			}
			assert.Contains(t, paths, tt.at)
		})
	}
}

func TestREST_PayloadTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Gateway.MaxBodyBytes = 64 })

	resp := env.do(t, http.MethodPost, "/v1/interactions", interaction("c-3", string(bytes.Repeat([]byte("a"), 200))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "payload_too_large", decode[ErrorShape](t, resp).Code)
}

func TestREST_NotFound(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/conversations/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/interactions/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/unknown", nil).StatusCode)
}

func TestREST_WithoutHandoffQueue(t *testing.T) {
	srv, err := New(config.Defaults(), testLog())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	rr := httptest.NewRecorder()
	srv.handleListEscalations(rr, httptest.NewRequest(http.MethodGet, "/v1/escalations", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	srv.handlePostInteraction(rr, httptest.NewRequest(http.MethodPost, "/v1/interactions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestErrorShape(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"invalid request", fmt.Errorf("%w: message is required", orchestrator.ErrInvalidRequest), 400, "invalid_request", false},
		{"schema", &SchemaViolation{Schema: schemaFeedback}, 400, "invalid_payload", false},
		{"conversation missing", domain.ErrConversationNotFound, 404, "not_found", false},
		{"turn missing", fmt.Errorf("load: %w", domain.ErrTurnNotFound), 404, "not_found", false},
		{"transition", domain.ErrInvalidTransition, 409, "invalid_transition", false},
		{"conflict", fmt.Errorf("%w after 3 attempts", orchestrator.ErrContextConflict), 409, "context_conflict", true},
		{"pipeline", &orchestrator.PipelineError{Stage: domain.StageIntent, Err: orchestrator.ErrIntentUnavailable}, 503, "pipeline_failed", false},
		{"store down", fmt.Errorf("%w: disk full", orchestrator.ErrContextStoreUnavailable), 503, "unavailable", true},
		{"dispatcher stopped", feedback.ErrStopped, 503, "unavailable", true},
		{"deadline", context.DeadlineExceeded, 504, "timeout", true},
		{"other", errors.New("boom"), 500, "internal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, shape := errorShape(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, shape.Code)
			assert.Equal(t, tt.retryable, shape.Retryable)
		})
	}
}

func TestErrorShape_PipelineDetails(t *testing.T) {
	logs := map[domain.Stage]domain.StageLog{domain.StageIntent: {Status: domain.StageStatusDegraded, Degraded: true}}
	_, shape := errorShape(&orchestrator.PipelineError{
		Stage:        domain.StageIntent,
		Logs:         logs,
		FallbackText: "We will get back to you shortly.",
		Err:          orchestrator.ErrIntentUnavailable,
	})

	details, ok := shape.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.StageIntent, details["stage"])
	assert.Equal(t, "We will get back to you shortly.", details["fallback_text"])
	assert.Equal(t, logs, details["agent_logs"])
}

func TestIsAllowedConfigPath(t *testing.T) {
	for _, key := range []string{"gateway.port", "escalation", "escalation.sentimentThreshold", "pipeline.stageTimeouts.intent", "logging.level"} {
		assert.True(t, isAllowedConfigPath(key), key)
	}
	for _, key := range []string{"gateway.auth", "gateway.auth.token", "agents.intent.apiKey", "channels.email.password", "storage.path", "gateway.portable"} {
		assert.False(t, isAllowedConfigPath(key), key)
	}
}

func TestServerMethods(t *testing.T) {
	srv, err := New(config.Defaults(), testLog())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	assert.Equal(t, []string{
		"channels.status",
		"config.get",
		"conversation.get",
		"conversation.resolve",
		"escalations.list",
		"feedback.submit",
		"health",
		"interaction.get",
		"interaction.send",
	}, srv.Methods())
}
