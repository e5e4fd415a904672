// Package retry drives remote operations through a bounded attempt loop.
// Failure handling is delegated to a pure Classifier so the policy can be
// tested with nothing more than error values.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Decision tells the driver what to do with a failed attempt.
type Decision int

const (
	// Fail surfaces the error immediately, no further attempts.
	Fail Decision = iota
	// Backoff waits according to the schedule and tries again.
	Backoff
	// RefreshAndRetry runs the policy's Refresh hook and tries again
	// without consuming a slot in the backoff schedule.
	RefreshAndRetry
)

// Classifier maps an operation error to a Decision.
type Classifier func(error) Decision

// DefaultSchedule is the backoff ladder. Attempts past the end of the
// ladder reuse the last entry.
var DefaultSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// DefaultMaxAttempts bounds an operation including any refresh retries.
const DefaultMaxAttempts = 5

// Policy configures the retry driver.
type Policy struct {
	// MaxAttempts bounds total attempts, refresh retries included.
	MaxAttempts int

	// Schedule is the backoff ladder, indexed by how many backoffs have
	// already happened. Defaults to DefaultSchedule.
	Schedule []time.Duration

	// Classify decides what to do with a failed attempt. Required.
	Classify Classifier

	// Refresh is invoked for RefreshAndRetry decisions, typically to
	// force a new write token. Nil turns RefreshAndRetry into Fail.
	Refresh func(ctx context.Context) error
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if len(p.Schedule) == 0 {
		p.Schedule = DefaultSchedule
	}
	return p
}

// WithRefresh returns a copy of the policy with the given refresh hook.
func (p Policy) WithRefresh(refresh func(ctx context.Context) error) Policy {
	p.Refresh = refresh
	return p
}

// Do runs fn up to MaxAttempts times. On success it returns nil; once
// attempts are exhausted it returns the last observed error.
func Do(ctx context.Context, label string, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	if p.Classify == nil {
		return errors.New("retry policy has no classifier")
	}

	logger := zerolog.Ctx(ctx)

	var lastErr error
	backoffs := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("op", label).
					Int("attempts", attempt).
					Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		switch p.Classify(err) {
		case RefreshAndRetry:
			if p.Refresh == nil {
				logger.Error().Str("op", label).Err(err).Msg("token rejected and no refresh hook configured")
				return err
			}
			logger.Warn().Str("op", label).Int("attempt", attempt).Msg("token rejected, forcing refresh")
			if rerr := p.Refresh(ctx); rerr != nil {
				return errors.Errorf("refreshing token for %s: %w", label, rerr)
			}

		case Backoff:
			idx := backoffs
			if idx >= len(p.Schedule) {
				idx = len(p.Schedule) - 1
			}
			delay := p.Schedule[idx]
			backoffs++
			logger.Warn().
				Str("op", label).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Err(err).
				Msg("transient failure, backing off")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.Errorf("%s interrupted during backoff: %w", label, ctx.Err())
			}

		default:
			logger.Error().Str("op", label).Err(err).Msg("permanent failure")
			return err
		}
	}

	logger.Error().
		Str("op", label).
		Int("attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("retries exhausted")
	return lastErr
}
