package pipeline

import (
	"context"
	"errors"
	"time"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/pkg/events"

	"github.com/cenkalti/backoff/v5"
)

// Work is one delegated unit of work. The emit callback forwards incremental
// progress signals (thinking, tool_call, tool_result) to the event stream,
// tagged with the stage name by the runner.
type Work func(ctx context.Context, emit ProgressFunc) (interface{}, error)

// ProgressFunc forwards one progress signal from the delegated work.
type ProgressFunc func(typ events.Type, data map[string]interface{})

// DetachedJob is long-running delegated work driven by submit-then-poll, so
// no connection is held open for the full duration.
type DetachedJob interface {
	Submit(ctx context.Context) (handle string, err error)
	// Poll reports whether the job finished and, if so, its result.
	Poll(ctx context.Context, handle string) (done bool, result interface{}, err error)
}

// Runner executes one stage's delegated work with timeout and bounded retry,
// emitting start/progress/complete/error events around it.
type Runner struct {
	cfg Config
	pub *events.Publisher
	log logger.ILogger
}

func NewRunner(cfg Config, pub *events.Publisher, log logger.ILogger) *Runner {
	return &Runner{cfg: cfg, pub: pub, log: log}
}

// Run invokes work for the named stage. Retryable failures (including
// timeouts) are retried up to cfg.MaxRetries with exponential backoff; the
// final error propagates to the caller after a terminal error event.
func (r *Runner) Run(ctx context.Context, sessionID, stage, descriptor string, work Work) (interface{}, error) {
	r.pub.Publish(sessionID, events.TypeStart, stage, map[string]interface{}{
		"descriptor": descriptor,
	})

	emit := func(typ events.Type, data map[string]interface{}) {
		switch typ {
		case events.TypeThinking, events.TypeToolCall, events.TypeToolResult:
			r.pub.Publish(sessionID, typ, stage, data)
		}
	}

	started := time.Now()
	result, attempts, err := r.attempt(ctx, stage, work, emit)
	elapsed := time.Since(started)

	if err != nil {
		r.pub.Publish(sessionID, events.TypeError, stage, map[string]interface{}{
			"message":   err.Error(),
			"retryable": Retryable(err),
			"attempts":  attempts,
		})
		r.log.Error("Runner", "Stage failed", map[string]interface{}{
			"session_id": sessionID, "stage": stage, "attempts": attempts, "error": err.Error(),
		})
		return nil, err
	}

	r.pub.Publish(sessionID, events.TypeComplete, stage, map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
		"attempts":    attempts,
	})
	return result, nil
}

func (r *Runner) attempt(ctx context.Context, stage string, work Work, emit ProgressFunc) (interface{}, int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.RetryBackoffInitial
	bo.MaxInterval = r.cfg.RetryBackoffMax

	attempts := 0
	var lastErr error
	for attempts <= r.cfg.MaxRetries {
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.StageTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.StageTimeout)
		}
		result, err := work(attemptCtx, emit)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, attempts, nil
		}
		lastErr = err

		// Cancellation of the parent context is never retried.
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if !Retryable(err) || attempts > r.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		}
	}
	return nil, attempts, lastErr
}

// RunDetached runs a DetachedJob through the same event and retry policy as
// Run. Each attempt submits the job and polls with increasing backoff
// (PollInterval up to PollMaxInterval); an attempt still in progress at
// PollCeiling is converted into a retryable timeout failure.
func (r *Runner) RunDetached(ctx context.Context, sessionID, stage, descriptor string, job DetachedJob) (interface{}, error) {
	return r.Run(ctx, sessionID, stage, descriptor, func(ctx context.Context, emit ProgressFunc) (interface{}, error) {
		return r.poll(ctx, stage, job, emit)
	})
}

func (r *Runner) poll(ctx context.Context, stage string, job DetachedJob, emit ProgressFunc) (interface{}, error) {
	handle, err := job.Submit(ctx)
	if err != nil {
		return nil, err
	}
	emit(events.TypeToolCall, map[string]interface{}{"action": "submit", "handle": handle})

	deadline := time.Now().Add(r.cfg.PollCeiling)
	interval := r.cfg.PollInterval
	for {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		done, result, err := job.Poll(ctx, handle)
		if err != nil {
			return nil, err
		}
		if done {
			emit(events.TypeToolResult, map[string]interface{}{"action": "poll", "handle": handle, "status": "done"})
			return result, nil
		}

		if time.Now().After(deadline) {
			return nil, &UpstreamError{
				Stage:     stage,
				Retryable: true,
				Err:       errors.New("detached job exceeded poll ceiling"),
			}
		}

		interval = interval * 3 / 2
		if interval > r.cfg.PollMaxInterval {
			interval = r.cfg.PollMaxInterval
		}
	}
}
