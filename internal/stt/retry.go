package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

const (
	DefaultRetryCount = 3
	DefaultBaseDelay  = time.Second
)

// RetryRecognizer retries a recognizer with exponential backoff on network
// errors and 5xx answers.
type RetryRecognizer struct {
	next      Recognizer
	maxRetry  int
	baseDelay time.Duration
	log       *slog.Logger
}

// RetryOption configures the RetryRecognizer.
type RetryOption func(*RetryRecognizer)

func WithRetryCount(n int) RetryOption {
	return func(r *RetryRecognizer) {
		if n >= 0 {
			r.maxRetry = n
		}
	}
}

func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryRecognizer) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

func WithLogger(l *slog.Logger) RetryOption {
	return func(r *RetryRecognizer) {
		r.log = l
	}
}

func NewRetryRecognizer(next Recognizer, opts ...RetryOption) *RetryRecognizer {
	r := &RetryRecognizer{
		next:      next,
		maxRetry:  DefaultRetryCount,
		baseDelay: DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryRecognizer) Transcribe(ctx context.Context, req Request) (*transcript.Transcript, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetry; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * (1 << (attempt - 1))
			if r.log != nil {
				r.log.Warn("retrying transcription",
					slog.Int("attempt", attempt),
					slog.Int("max_retries", r.maxRetry),
					slog.Duration("delay", delay),
					slogError(lastErr))
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := r.next.Transcribe(ctx, req)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("transcription failed after %d retries: %w", r.maxRetry, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
