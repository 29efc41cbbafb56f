package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	done  bool
	err   map[string]any
	items []string
}

func (h fakeHandle) Done() bool          { return h.done }
func (h fakeHandle) Err() map[string]any { return h.err }
func (h fakeHandle) Items() []string     { return h.items }

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

// refreshAfter reports done with final after n refreshes.
func refreshAfter(n int, final fakeHandle) (RefreshFunc[string], *int) {
	calls := 0
	return func(_ context.Context, _ Handle[string]) (Handle[string], error) {
		calls++
		if calls >= n {
			return final, nil
		}
		return fakeHandle{}, nil
	}, &calls
}

func TestWait_PollsUntilDone(t *testing.T) {
	rec := &recorder{}
	refresh, calls := refreshAfter(3, fakeHandle{done: true, items: []string{"gs://b/v.mp4"}})

	p := Poller[string]{Interval: 10 * time.Second, Refresh: refresh, Sleep: rec.sleep}

	out, err := p.Wait(context.Background(), fakeHandle{})
	require.NoError(t, err)

	assert.Equal(t, DoneOK, out.State)
	assert.Equal(t, []string{"gs://b/v.mp4"}, out.Items)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, rec.sleeps)
}

func TestWait_DoneErrorWithoutSleeping(t *testing.T) {
	rec := &recorder{}
	refresh, calls := refreshAfter(1, fakeHandle{})

	p := Poller[string]{Refresh: refresh, Sleep: rec.sleep}

	payload := map[string]any{"code": float64(3), "message": "prompt rejected"}
	out, err := p.Wait(context.Background(), fakeHandle{done: true, err: payload})
	require.NoError(t, err)

	assert.Equal(t, DoneError, out.State)
	assert.Equal(t, payload, out.Err)
	assert.Empty(t, rec.sleeps)
	assert.Zero(t, *calls)
	assert.Zero(t, out.Polls)
}

func TestWait_DoneEmpty(t *testing.T) {
	rec := &recorder{}
	refresh, _ := refreshAfter(1, fakeHandle{done: true})

	p := Poller[string]{Refresh: refresh, Sleep: rec.sleep}

	out, err := p.Wait(context.Background(), fakeHandle{})
	require.NoError(t, err)
	assert.Equal(t, DoneEmpty, out.State)
	assert.Empty(t, out.Items)
	assert.Len(t, rec.sleeps, 1)
}

func TestWait_DefaultInterval(t *testing.T) {
	rec := &recorder{}
	refresh, _ := refreshAfter(1, fakeHandle{done: true, items: []string{"x"}})

	p := Poller[string]{Refresh: refresh, Sleep: rec.sleep}

	_, err := p.Wait(context.Background(), fakeHandle{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultInterval}, rec.sleeps)
}

func TestWait_RefreshErrorPropagates(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("transport down")

	p := Poller[string]{
		Refresh: func(context.Context, Handle[string]) (Handle[string], error) { return nil, boom },
		Sleep:   rec.sleep,
	}

	out, err := p.Wait(context.Background(), fakeHandle{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Polling, out.State)
}

func TestWait_NilRefreshResult(t *testing.T) {
	rec := &recorder{}

	p := Poller[string]{
		Refresh: func(context.Context, Handle[string]) (Handle[string], error) { return nil, nil },
		Sleep:   rec.sleep,
	}

	_, err := p.Wait(context.Background(), fakeHandle{})
	assert.ErrorIs(t, err, ErrNilHandle)
}

func TestWait_ContextCancelEndsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refresh, calls := refreshAfter(1, fakeHandle{done: true})
	p := Poller[string]{Interval: time.Hour, Refresh: refresh}

	_, err := p.Wait(ctx, fakeHandle{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, *calls)
}

func TestWait_OnPoll(t *testing.T) {
	rec := &recorder{}
	refresh, _ := refreshAfter(2, fakeHandle{done: true, items: []string{"x"}})

	var seen []int
	p := Poller[string]{
		Refresh: refresh,
		Sleep:   rec.sleep,
		OnPoll:  func(polls int, _ time.Duration) { seen = append(seen, polls) },
	}

	_, err := p.Wait(context.Background(), fakeHandle{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestWait_NilHandle(t *testing.T) {
	p := Poller[string]{Refresh: func(context.Context, Handle[string]) (Handle[string], error) { return nil, nil }}

	_, err := p.Wait(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilHandle)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DONE_OK", DoneOK.String())
	assert.Equal(t, "DONE_EMPTY", DoneEmpty.String())
	assert.Equal(t, "State(42)", State(42).String())
}
