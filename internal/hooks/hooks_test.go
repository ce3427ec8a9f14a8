package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_OnAndEmit(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventEscalationTriggered, "test", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventEscalationTriggered, map[string]any{
		"conversationId": "c-1",
		"reason":         "EMOTION_STREAK",
	})
	assert.Equal(t, EventEscalationTriggered, got.Event)
	assert.Equal(t, "c-1", got.String("conversationId"))
	assert.Equal(t, "EMOTION_STREAK", got.String("reason"))
	assert.Empty(t, got.String("missing"))
}

func TestManager_EmitOrderAndErrors(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventTurnCommitted, "first", func(context.Context, Payload) error {
		order = append(order, "first")
		return errors.New("handler broke")
	})
	m.On(EventTurnCommitted, "second", func(context.Context, Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventTurnCommitted, nil)
	assert.Equal(t, []string{"first", "second"}, order, "an error does not stop later handlers")
}

func TestManager_EmitNoHandlers(t *testing.T) {
	m := testManager()
	assert.NotPanics(t, func() { m.Emit(context.Background(), EventGatewayStop, nil) })
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventConversationResolved, "remove-me", func(context.Context, Payload) error {
		removed++
		return nil
	})
	m.On(EventConversationResolved, "keep-me", func(context.Context, Payload) error {
		kept++
		return nil
	})

	m.Off(EventConversationResolved, "remove-me")
	m.Emit(context.Background(), EventConversationResolved, nil)
	assert.Zero(t, removed)
	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, m.Count(EventConversationResolved))
}

func TestManager_EmitAsyncAndWait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		m.On(EventFeedbackProcessed, name, func(context.Context, Payload) error {
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), "", EventFeedbackProcessed, nil)
	m.EmitAsync(context.Background(), "t-1", EventFeedbackProcessed, nil)
	m.Wait()
	assert.Equal(t, int32(6), count.Load())
}

func TestManager_EmitAsyncKeepsOrderPerKey(t *testing.T) {
	m := testManager()

	var mu sync.Mutex
	var got []string
	record := func(_ context.Context, p Payload) error {
		if p.Event == EventEscalationTriggered {
			// A slow first event must still be delivered first.
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		got = append(got, fmt.Sprintf("%s:%v", p.Event, p.Data["n"]))
		return nil
	}
	m.On(EventEscalationTriggered, "record", record)
	m.On(EventConversationResolved, "record", record)

	ctx := context.Background()
	m.EmitAsync(ctx, "c-1", EventEscalationTriggered, map[string]any{"n": 0})
	for i := 1; i <= 5; i++ {
		m.EmitAsync(ctx, "c-1", EventConversationResolved, map[string]any{"n": i})
	}
	m.Wait()

	assert.Equal(t, []string{
		"escalation_triggered:0",
		"conversation_resolved:1",
		"conversation_resolved:2",
		"conversation_resolved:3",
		"conversation_resolved:4",
		"conversation_resolved:5",
	}, got)

	m.tailMu.Lock()
	defer m.tailMu.Unlock()
	assert.Empty(t, m.tails, "delivered keys are forgotten")
}

func TestManager_EmitAsyncKeysDoNotBlockEachOther(t *testing.T) {
	m := testManager()

	release := make(chan struct{})
	delivered := make(chan string, 1)
	m.On(EventTurnCommitted, "gate", func(_ context.Context, p Payload) error {
		if p.String("conversationId") == "c-1" {
			<-release
			return nil
		}
		delivered <- p.String("conversationId")
		return nil
	})

	ctx := context.Background()
	m.EmitAsync(ctx, "c-1", EventTurnCommitted, map[string]any{"conversationId": "c-1"})
	m.EmitAsync(ctx, "c-2", EventTurnCommitted, map[string]any{"conversationId": "c-2"})

	select {
	case id := <-delivered:
		assert.Equal(t, "c-2", id)
	case <-time.After(time.Second):
		t.Fatal("c-2 waited for c-1")
	}
	close(release)
	m.Wait()
}

func TestManager_EmitAsyncReturnsBeforeHandlers(t *testing.T) {
	m := testManager()

	release := make(chan struct{})
	var ran atomic.Bool
	m.On(EventEscalationTriggered, "slow", func(context.Context, Payload) error {
		<-release
		ran.Store(true)
		return nil
	})

	m.EmitAsync(context.Background(), "c-1", EventEscalationTriggered, nil)
	assert.False(t, ran.Load())
	close(release)
	m.Wait()
	assert.True(t, ran.Load())
}

func TestManager_Events(t *testing.T) {
	m := testManager()
	noop := func(context.Context, Payload) error { return nil }

	m.On(EventTurnCommitted, "h1", noop)
	m.On(EventGatewayStart, "h2", noop)
	m.On(EventGatewayStop, "h3", noop)
	m.Off(EventGatewayStop, "h3")

	assert.Equal(t, []string{EventGatewayStart, EventTurnCommitted}, m.Events())
}

func TestAllEvents(t *testing.T) {
	require.Len(t, AllEvents, 7)
	assert.Contains(t, AllEvents, EventEscalationTriggered)
	assert.Contains(t, AllEvents, EventConversationResolved)
}
