package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
}

func TestResolveAuth_DefaultsMode(t *testing.T) {
	assert.Equal(t, "token", ResolveAuth(config.GatewayAuth{Token: "t"}).Mode)
	assert.Equal(t, "password", ResolveAuth(config.GatewayAuth{Password: "p"}).Mode)
}

func TestResolveAuth_EnvFallback(t *testing.T) {
	t.Setenv("CAREAI_GATEWAY_TOKEN", "env-token")
	t.Setenv("CAREAI_GATEWAY_PASSWORD", "env-pass")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token"})
	assert.Equal(t, "env-token", auth.Token)
	assert.Equal(t, "env-pass", auth.Password)

	auth = ResolveAuth(config.GatewayAuth{Mode: "token", Token: "config-token"})
	assert.Equal(t, "config-token", auth.Token, "config wins over env")
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"token ok", ResolvedAuth{Mode: "token", Token: "secret"}, &ConnectAuth{Token: "secret"}, true, ""},
		{"token mismatch", ResolvedAuth{Mode: "token", Token: "secret"}, &ConnectAuth{Token: "wrong"}, false, "token_mismatch"},
		{"token missing", ResolvedAuth{Mode: "token", Token: "secret"}, &ConnectAuth{}, false, "token required"},
		{"server token unset", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "x"}, false, "server token not configured"},
		{"password ok", ResolvedAuth{Mode: "password", Password: "p"}, &ConnectAuth{Password: "p"}, true, ""},
		{"password mismatch", ResolvedAuth{Mode: "password", Password: "p"}, &ConnectAuth{Password: "q"}, false, "password_mismatch"},
		{"no credentials", ResolvedAuth{Mode: "token", Token: "secret"}, nil, false, "no credentials provided"},
		{"none", ResolvedAuth{Mode: "none"}, nil, true, ""},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, false, "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestHTTPCredentials(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/escalations", nil)
	assert.Nil(t, httpCredentials(r))

	r.Header.Set("Authorization", "Bearer  abc ")
	assert.Equal(t, &ConnectAuth{Token: "abc"}, httpCredentials(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/escalations", nil)
	r.SetBasicAuth("agent", "hunter2")
	assert.Equal(t, &ConnectAuth{Password: "hunter2"}, httpCredentials(r))
}

func newTestLimiter(t *testing.T) *authRateLimiter {
	l := newAuthRateLimiter()
	t.Cleanup(func() { close(l.stop) })
	return l
}

func TestAuthRateLimiter(t *testing.T) {
	l := newTestLimiter(t)
	assert.True(t, l.allow("192.168.1.1:12345"))

	for range authRateMaxFails - 1 {
		l.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, l.allow("192.168.1.1:999"), "port is ignored")

	l.recordFailure("192.168.1.1")
	assert.False(t, l.allow("192.168.1.1:12345"))
	assert.True(t, l.allow("192.168.1.2:12345"))
}

func TestAuthRateLimiter_ExpiredFailures(t *testing.T) {
	l := newTestLimiter(t)

	l.mu.Lock()
	old := time.Now().Add(-authRateWindow - time.Minute)
	for range authRateMaxFails {
		l.failures["192.168.1.1"] = append(l.failures["192.168.1.1"], old)
	}
	l.mu.Unlock()

	assert.True(t, l.allow("192.168.1.1:12345"))
}

func TestCheckWebSocketOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, checkWebSocketOrigin(nil)(req("")))
	assert.False(t, checkWebSocketOrigin(nil)(req("http://evil.com")))
	assert.True(t, checkWebSocketOrigin([]string{"*"})(req("http://anything.com")))

	check := checkWebSocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, check(req("http://two.com")))
	assert.False(t, check(req("http://three.com")))
}
