package agent

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type limited[In, Out any] struct {
	next Adapter[In, Out]
	sem  *semaphore.Weighted
}

// Limit caps concurrent calls through a with a shared semaphore. Waiting
// for a slot honors ctx, so a stage timeout also bounds queueing time.
func Limit[In, Out any](a Adapter[In, Out], sem *semaphore.Weighted) Adapter[In, Out] {
	if sem == nil {
		return a
	}
	return &limited[In, Out]{next: a, sem: sem}
}

func (l *limited[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		var zero Out
		return zero, err
	}
	defer l.sem.Release(1)
	return l.next.Invoke(ctx, in)
}

// LimitSet applies one shared cap to the request-path stages of s.
// Analytics is left as is: the feedback dispatcher bounds it with its own
// worker count, and a slow analytics backlog must not hold slots that
// interactive turns are waiting for.
func LimitSet(s Set, sem *semaphore.Weighted) Set {
	return Set{
		Intent:    Limit(s.Intent, sem),
		Knowledge: Limit(s.Knowledge, sem),
		Emotion:   Limit(s.Emotion, sem),
		Anomaly:   Limit(s.Anomaly, sem),
		Analytics: s.Analytics,
	}
}
