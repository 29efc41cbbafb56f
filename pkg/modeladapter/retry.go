package modeladapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/modeladapter/usage"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/rs/zerolog"
)

var (
	_ ChoiceCompleter     = (*RetryCompleter)(nil)
	_ StructuredCompleter = (*RetryCompleter)(nil)
)

// RetryOpts configures a RetryCompleter.
type RetryOpts struct {
	MaxRetries uint64        // Retries after the first attempt (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
	MaxDelay   time.Duration // Cap on a single delay (default 30s).
}

// RetryCompleter wraps a Completer and retries calls that fail with a
// RateLimitError or a 5xx StatusError. Other errors are returned immediately. A Retry-After hint
// from the provider is used when it is longer than the computed delay.
type RetryCompleter struct {
	inner Completer
	opts  RetryOpts
}

// NewRetryCompleter wraps inner with rate-limit and server-error retries.
func NewRetryCompleter(inner Completer, opts RetryOpts) *RetryCompleter {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}

	return &RetryCompleter{inner: inner, opts: opts}
}

// Complete calls the inner completer, retrying on rate limits.
func (r *RetryCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	return r.retry(ctx, func() (message.Message, error) {
		return r.inner.Complete(ctx, c, tools)
	})
}

// CompleteWithChoice forwards the tool choice when the inner completer
// supports it and falls back to Complete otherwise.
func (r *RetryCompleter) CompleteWithChoice(ctx context.Context, c *chat.Chat, tools []toolbox.Tool, choice ToolChoice) (message.Message, error) {
	cc, ok := r.inner.(ChoiceCompleter)
	if !ok {
		return r.Complete(ctx, c, tools)
	}

	return r.retry(ctx, func() (message.Message, error) {
		return cc.CompleteWithChoice(ctx, c, tools, choice)
	})
}

// CompleteStructured forwards to the inner completer, or returns
// ErrStructuredUnsupported.
func (r *RetryCompleter) CompleteStructured(ctx context.Context, c *chat.Chat, schema json.RawMessage) (message.Message, error) {
	sc, ok := r.inner.(StructuredCompleter)
	if !ok {
		return message.Message{}, ErrStructuredUnsupported
	}

	return r.retry(ctx, func() (message.Message, error) {
		return sc.CompleteStructured(ctx, c, schema)
	})
}

// UsageTracker exposes the inner completer's tracker, if any.
func (r *RetryCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return nil
}

// ModelName exposes the inner completer's model name, if any.
func (r *RetryCompleter) ModelName() string {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.ModelName()
	}
	return ""
}

func (r *RetryCompleter) retry(ctx context.Context, fn func() (message.Message, error)) (message.Message, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.opts.BaseDelay
	exp.MaxInterval = r.opts.MaxDelay
	exp.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: exp}
	b := backoff.WithContext(backoff.WithMaxRetries(hinted, r.opts.MaxRetries), ctx)

	op := func() (message.Message, error) {
		msg, err := fn()
		if err == nil {
			return msg, nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
			return message.Message{}, err
		}

		var se *StatusError
		if errors.As(err, &se) && se.Temporary() {
			return message.Message{}, err
		}

		return message.Message{}, backoff.Permanent(err)
	}

	notify := func(err error, d time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Dur("delay", d).Msg("model call failed, retrying")
	}

	return backoff.RetryNotifyWithData(op, b, notify)
}

// retryAfterBackOff stretches the next delay to the provider's Retry-After
// hint when one was seen.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.hint > d {
		d = b.hint
	}
	b.hint = 0
	return d
}
