// Package operation polls long-running remote jobs to completion.
//
// A job is submitted elsewhere; Wait takes its first handle and refreshes it
// at a fixed interval until the remote side reports it done:
//
//	SUBMITTED -> POLLING* -> DONE_OK | DONE_ERROR | DONE_EMPTY
//
// The poller has no timeout of its own. Callers bound it with their context;
// cancelling the context ends the wait but does not cancel the remote job.
package operation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultInterval is the time between refreshes.
const DefaultInterval = 10 * time.Second

// Handle is a snapshot of a remote job.
type Handle[T any] interface {
	// Done reports whether the job has finished.
	Done() bool
	// Err returns the job's error payload, or nil.
	Err() map[string]any
	// Items returns the job's results once done.
	Items() []T
}

// State is the poller's view of a job.
type State int

const (
	Submitted State = iota
	Polling
	DoneOK
	DoneError
	DoneEmpty
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "SUBMITTED"
	case Polling:
		return "POLLING"
	case DoneOK:
		return "DONE_OK"
	case DoneError:
		return "DONE_ERROR"
	case DoneEmpty:
		return "DONE_EMPTY"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the terminal result of a wait.
type Outcome[T any] struct {
	State State
	Err   map[string]any
	Items []T
	Polls int
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RefreshFunc fetches a newer snapshot of the job.
type RefreshFunc[T any] func(ctx context.Context, h Handle[T]) (Handle[T], error)

// Poller drives a handle to completion.
type Poller[T any] struct {
	Interval time.Duration
	Refresh  RefreshFunc[T]
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	// OnPoll, if set, is called after every refresh.
	OnPoll func(polls int, elapsed time.Duration)
}

// ErrNilHandle is returned when Wait or a refresh yields no handle.
var ErrNilHandle = errors.New("operation: nil handle")

// Wait polls h until it is done. Refresh errors and context cancellation
// are returned as errors; a job that finished with an error payload is a
// DoneError outcome, not an error.
func (p *Poller[T]) Wait(ctx context.Context, h Handle[T]) (Outcome[T], error) {
	if h == nil {
		return Outcome[T]{}, ErrNilHandle
	}
	if p.Refresh == nil {
		return Outcome[T]{}, errors.New("operation: refresh func is required")
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	start := time.Now()
	out := Outcome[T]{State: Submitted}

	for !h.Done() {
		out.State = Polling

		if err := sleep(ctx, interval); err != nil {
			return out, err
		}

		next, err := p.Refresh(ctx, h)
		if err != nil {
			return out, fmt.Errorf("operation: refresh: %w", err)
		}
		if next == nil {
			return out, ErrNilHandle
		}

		h = next
		out.Polls++

		if p.OnPoll != nil {
			p.OnPoll(out.Polls, time.Since(start))
		}
	}

	switch {
	case len(h.Err()) > 0:
		out.State = DoneError
		out.Err = h.Err()
	case len(h.Items()) == 0:
		out.State = DoneEmpty
	default:
		out.State = DoneOK
		out.Items = h.Items()
	}

	return out, nil
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
