// Package usage records the tokens spent by model calls, keyed by the turn
// (invocation) that made them.
package usage

import "sync"

// TokenCount holds input and output token counts.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Plus returns the element-wise sum of tc and o.
func (tc TokenCount) Plus(o TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + o.InputTokens,
		OutputTokens: tc.OutputTokens + o.OutputTokens,
	}
}

// Tracker accumulates token usage of one model. Completers shared by
// concurrent sessions record each call under its invocation id. It is safe
// for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	calls    int
	last     TokenCount
	total    TokenCount
	byInvoke map[string]TokenCount
}

// Add records a call that belongs to no invocation.
func (t *Tracker) Add(tc TokenCount) {
	t.Record("", tc)
}

// Record adds one call made on behalf of invocation.
func (t *Tracker) Record(invocation string, tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.last = tc
	t.total = t.total.Plus(tc)

	if invocation == "" {
		return
	}
	if t.byInvoke == nil {
		t.byInvoke = make(map[string]TokenCount)
	}
	t.byInvoke[invocation] = t.byInvoke[invocation].Plus(tc)
}

// Last returns the most recent call. The bool is false before the first one.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the tokens of every recorded call.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Invocation returns the tokens spent on behalf of one invocation.
func (t *Tracker) Invocation(id string) TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.byInvoke[id]
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}
