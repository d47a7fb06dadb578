package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/papercomputeco/parley/pkg/llm"
)

const (
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 10 * time.Second
)

// Sender is the exchange surface shared by Client and Retrier.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
	SendStreaming(ctx context.Context, text string) (*Stream, error)
}

var (
	_ Sender = (*Client)(nil)
	_ Sender = (*Retrier)(nil)
)

// RetryPolicy configures a Retrier. MaxRetries of zero disables retrying.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Retrier re-attempts failed exchanges with exponential backoff. Only failures
// that happen before any fragment is delivered are retried, so a streaming
// caller never sees a fragment twice. History is unaffected by failed attempts.
type Retrier struct {
	next   Sender
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetrier wraps next.
func NewRetrier(next Sender, policy RetryPolicy, logger *zap.Logger) *Retrier {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryMaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{next: next, policy: policy, logger: logger}
}

// Send retries next.Send.
func (r *Retrier) Send(ctx context.Context, text string) (string, error) {
	var reply string
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		reply, err = r.next.Send(ctx, text)
		return err
	})
	return reply, err
}

// SendStreaming retries opening the stream. Failures reported by the Stream
// itself are not retried.
func (r *Retrier) SendStreaming(ctx context.Context, text string) (*Stream, error) {
	var stream *Stream
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		stream, err = r.next.SendStreaming(ctx, text)
		return err
	})
	return stream, err
}

func (r *Retrier) do(ctx context.Context, f retry.RetryFunc) error {
	if r.policy.MaxRetries == 0 {
		return f(ctx)
	}

	b := retry.NewExponential(r.policy.BaseDelay)
	b = retry.WithCappedDuration(r.policy.MaxDelay, b)
	b = retry.WithMaxRetries(r.policy.MaxRetries, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := f(ctx)
		if err == nil || !Retryable(err) || ctx.Err() != nil {
			return err
		}
		r.logger.Warn("retrying exchange", zap.Int("attempt", attempt), zap.Error(err))
		return retry.RetryableError(err)
	})
}

// Retryable reports whether err is a transient failure: a transport failure, a
// rate limit, or a server-side status.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, llm.ErrTransport) {
		return true
	}
	var bad *llm.BadResponseError
	if errors.As(err, &bad) {
		return bad.StatusCode == http.StatusTooManyRequests || bad.StatusCode >= 500
	}
	return false
}
