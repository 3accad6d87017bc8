package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bk-ru/parser/pkg/failure"
	"github.com/bk-ru/parser/pkg/timeutil"
)

// RetryAfterOverrider is implemented by errors that carry a
// server-specified delay (a Retry-After header, say) to use in place
// of the computed exponential backoff.
type RetryAfterOverrider interface {
	RetryDelayOverride() time.Duration
}

// Retry executes the provided function with retry logic.
// It calls the function at most MaxAttempts times, applying exponential backoff
// with jitter between attempts, unless the failing error overrides the
// delay via RetryAfterOverrider. Only retryable errors will trigger a
// retry. Sleeping goes through sleeper rather than time.Sleep, so a
// cancelled ctx cuts a wait short instead of blocking past a deadline.
//
// Type parameter T represents the return type of the function being retried.
// Returns a Result containing the value (if successful), error (if failed),
// and the number of attempts made.
func Retry[T any](ctx context.Context, retryParam RetryParam, sleeper timeutil.Sleeper, fn func() (T, failure.ClassifiedError)) Result[T] {
	var lastErr failure.ClassifiedError
	var zero T

	if retryParam.MaxAttempts < 1 {
		return Result[T]{
			value: zero,
			err: &RetryError{
				Message:   "max attempt cannot be 0",
				Cause:     ErrZeroAttempt,
				Retryable: true,
			},
			attempts: 0,
		}
	}

	// Initialize random number generator with the provided seed
	rng := rand.New(rand.NewSource(retryParam.RandomSeed))

	attempt := 1
	for ; attempt <= retryParam.MaxAttempts; attempt++ {
		result, err := fn()

		// Success case: no error
		if err == nil {
			return NewSuccessResult(result, attempt)
		}

		lastErr = err

		// Check if the error is retryable
		// We check if the error implements the retryable interface or has Retryable field
		shouldRetry := isErrorRetryable(err)

		// If not retryable, return immediately
		if !shouldRetry {
			return Result[T]{
				value:    zero,
				err:      err,
				attempts: attempt,
			}
		}

		// If this was the last attempt, break and return exhausted error
		if attempt == retryParam.MaxAttempts {
			break
		}

		// Compute delay for the next retry using exponential backoff with
		// jitter, unless err names its own required delay.
		delay := timeutil.ExponentialBackoffDelay(
			attempt,
			retryParam.Jitter,
			*rng,
			retryParam.BackoffParam,
		)
		if ra, ok := err.(RetryAfterOverrider); ok {
			if override := ra.RetryDelayOverride(); override > 0 {
				delay = override
			}
		}

		sleeper.Sleep(ctx, delay)
		if ctx.Err() != nil {
			break
		}
	}

	// Return failure result when max attempts are exhausted or ctx was
	// cancelled; attempt is the number of calls actually made.
	return Result[T]{
		value: zero,
		err: &RetryError{
			Message:   fmt.Sprintf("exhausted %d attempts. Last error: %v", attempt, lastErr),
			Cause:     ErrExhaustedAttempts,
			Retryable: true, // This is recoverable at scheduler level
		},
		attempts: attempt,
	}
}

// isErrorRetryable checks if an error should be retried.
// It uses type assertion to check for the Retryable property.
func isErrorRetryable(err failure.ClassifiedError) bool {
	// Type assert to check if the error has a Retryable field/method
	type hasRetryable interface {
		IsRetryable() bool
	}

	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}

	// Check for struct with Retryable field via reflection-like interface
	// This handles errors like RetryError that have a Retryable field
	type hasRetryableField interface {
		failure.ClassifiedError
		IsRetryable() bool
	}

	if r, ok := err.(hasRetryableField); ok {
		return r.IsRetryable()
	}

	// Default to retryable if we can't determine
	// This maintains backward compatibility
	return true
}
