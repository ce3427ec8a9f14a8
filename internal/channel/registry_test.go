package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel blocks in Start until Stop or ctx cancellation.
type mockChannel struct {
	id       string
	kind     string
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
}

func newMock(id, kind string) *mockChannel {
	return &mockChannel{id: id, kind: kind, stop: make(chan struct{})}
}

func (m *mockChannel) ID() string   { return m.id }
func (m *mockChannel) Kind() string { return m.kind }

func (m *mockChannel) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stop:
		return nil
	}
}

func (m *mockChannel) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
	return nil
}

func (m *mockChannel) Send(context.Context, domain.OutboundMessage) error { return nil }
func (m *mockChannel) OnMessage(func(domain.InboundMessage))              {}

func (m *mockChannel) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// statusChannel also reports its own status.
type statusChannel struct{ *mockChannel }

func (s statusChannel) Status() domain.ChannelStatus {
	return domain.ChannelStatus{ChannelID: s.id, Kind: s.kind, Connected: true, Running: true}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(newMock("irc", domain.ChannelChat)))
	assert.ErrorIs(t, reg.Register(newMock("irc", domain.ChannelChat)), ErrDuplicate)

	got, ok := reg.Get("irc")
	require.True(t, ok)
	assert.Equal(t, domain.ChannelChat, got.Kind())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_ListAndStatusAreSorted(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.Register(statusChannel{newMock("irc", domain.ChannelChat)}))
	require.NoError(t, reg.Register(newMock("email", domain.ChannelEmail)))

	assert.Equal(t, []string{"email", "irc"}, reg.List())
	assert.Equal(t, []domain.ChannelStatus{
		{ChannelID: "email", Kind: domain.ChannelEmail, Running: true},
		{ChannelID: "irc", Kind: domain.ChannelChat, Connected: true, Running: true},
	}, reg.Status())
}

func TestRegistry_StartAndStopAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	irc := newMock("irc", domain.ChannelChat)
	broken := newMock("email", domain.ChannelEmail)
	broken.startErr = assert.AnError
	require.NoError(t, reg.Register(irc))
	require.NoError(t, reg.Register(broken))

	reg.StartAll(context.Background())
	assert.Eventually(t, irc.isStarted, time.Second, 5*time.Millisecond)
	assert.Eventually(t, broken.isStarted, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.StopAll(ctx), "StopAll waits for Start to return")
}

func TestRegistry_StopAllHonorsContext(t *testing.T) {
	reg := NewRegistry(testLogger())
	stuck := newMock("irc", domain.ChannelChat)
	require.NoError(t, reg.Register(stuck))

	startCtx, stopStart := context.WithCancel(context.Background())
	defer stopStart()
	// Stop is never observed: the mock's stop channel is replaced.
	stuck.stop = make(chan struct{})
	reg.StartAll(startCtx)
	require.Eventually(t, stuck.isStarted, time.Second, 5*time.Millisecond)
	stuck.mu.Lock()
	stuck.stopped = true
	stuck.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, reg.StopAll(ctx), context.DeadlineExceeded)

	stopStart()
	require.NoError(t, reg.StopAll(context.Background()))
}
