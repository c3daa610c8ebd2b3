package oracle

import (
	"context"
	"fmt"
	"time"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
	"trip-agent/pkg/events"
	"trip-agent/pkg/metrics"
)

// RetryPolicy bounds every oracle invocation.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is slept between attempts.
	RetryDelay time.Duration
	// Model is the primary model; empty means the adapter default.
	Model string
	// FallbackModels are tried in order after repeated rate limiting.
	FallbackModels []string
	// RateLimitThreshold is how many consecutive rate-limit failures
	// advance to the next model.
	RateLimitThreshold int
}

// DefaultRetryPolicy allows two attempts with a
// short pause, switching model after two consecutive rate limits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         1,
		RetryDelay:         2 * time.Second,
		RateLimitThreshold: 2,
	}
}

// WithFallbacks sets the fallback list and raises MaxRetries so every
// model in the chain gets RateLimitThreshold attempts.
func (p RetryPolicy) WithFallbacks(models ...string) RetryPolicy {
	p.FallbackModels = models
	threshold := p.RateLimitThreshold
	if threshold <= 0 {
		threshold = 2
	}
	if need := threshold*(len(models)+1) - 1; p.MaxRetries < need {
		p.MaxRetries = need
	}
	return p
}

func (p RetryPolicy) models() []string {
	return append([]string{p.Model}, p.FallbackModels...)
}

// Instrumentation carries the observability hooks for Invoke.
type Instrumentation struct {
	Logger  utils.ExtendedLogger
	Emitter events.Emitter
	Metrics *metrics.Metrics
	// Label names the call site in logs and errors.
	Label string
}

// CallFunc performs one oracle attempt against model. Returning (nil, nil)
// means "no answer" and is retried.
type CallFunc[T any] func(ctx context.Context, model string) (*T, error)

// Invoke runs call up to policy.MaxRetries+1 times and returns the first
// non-nil result. After RateLimitThreshold consecutive rate-limit failures it
// moves to the next fallback model and resets the streak; any other failure
// resets the streak immediately. When every attempt fails it logs the last
// error and returns an *UnavailableError.
func Invoke[T any](ctx context.Context, inst Instrumentation, policy RetryPolicy, call CallFunc[T]) (*T, error) {
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	threshold := policy.RateLimitThreshold
	if threshold <= 0 {
		threshold = 2
	}

	models := policy.models()
	modelIdx := 0
	rateLimitStreak := 0
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		model := models[modelIdx]

		result, err := call(ctx, model)
		if err == nil && result != nil {
			inst.Metrics.OracleAttempt("success")
			if attempt > 1 && inst.Logger != nil {
				inst.Logger.Infof("✅ [%s] oracle call succeeded on attempt %d/%d", inst.Label, attempt, attempts)
			}
			return result, nil
		}
		if err == nil {
			err = ErrNoResult
		}
		lastErr = err

		if llmtypes.IsRateLimit(err) {
			inst.Metrics.OracleAttempt("rate_limited")
			rateLimitStreak++
			events.Emit(ctx, inst.Emitter, events.New(events.ThrottlingDetected, err.Error()).
				With("label", inst.Label).With("model", model).With("attempt", attempt))

			if rateLimitStreak >= threshold {
				rateLimitStreak = 0
				if modelIdx+1 < len(models) && attempt < attempts {
					modelIdx++
					inst.Metrics.OracleFallback()
					if inst.Logger != nil {
						inst.Logger.Warnf("🔄 [%s] %d consecutive rate limits on %q, falling back to %q", inst.Label, threshold, model, models[modelIdx])
					}
					events.Emit(ctx, inst.Emitter, events.New(events.FallbackModelUsed, "rate limited").
						With("label", inst.Label).With("from", model).With("to", models[modelIdx]))
				}
			}
		} else {
			inst.Metrics.OracleAttempt("failed")
			rateLimitStreak = 0
		}

		if inst.Logger != nil {
			inst.Logger.Warnf("⚠️ [%s] oracle attempt %d/%d failed: %v", inst.Label, attempt, attempts, err)
		}

		if ctx.Err() != nil {
			lastErr = fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			break
		}

		if attempt < attempts && policy.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				lastErr = fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
				attempt = attempts
			case <-time.After(policy.RetryDelay):
			}
		}
	}

	unavailable := &UnavailableError{
		Label:    inst.Label,
		Attempts: attempts,
		Model:    models[modelIdx],
		LastErr:  lastErr,
	}
	if inst.Logger != nil {
		inst.Logger.Errorf("❌ [%s] oracle call failed after %d attempts: %v", inst.Label, attempts, lastErr)
	}
	events.Emit(ctx, inst.Emitter, events.New(events.OracleUnavailable, unavailable.Error()).With("label", inst.Label))
	return nil, unavailable
}
