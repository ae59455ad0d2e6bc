// Package provision waits for containers to report a usable provisioned state.
//
// The engine is purely observational: every poll re-reads liveness, status,
// endpoint, and error, because the remote agent owns provisioning and its
// progress is not monotonic.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/fleetctl/internal/clock"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/logging"
	"github.com/danmuck/fleetctl/internal/observability"
	"github.com/rs/zerolog"
)

// ErrInvalidTimeout is returned for a negative wait budget.
var ErrInvalidTimeout = errors.New("provision: invalid timeout")

// Waiter blocks until a container is provisioned, fails, or runs out of time.
type Waiter interface {
	AwaitProvisioned(ctx context.Context, c fleet.Container, timeout time.Duration) (fleet.Snapshot, error)
}

// Config controls poll cadence.
type Config struct {
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *zerolog.Logger
}

// DefaultConfig polls every two seconds on the real clock.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Clock:        clock.Real(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Logger == nil {
		l := logging.Component("provision")
		c.Logger = &l
	}
	return c
}

// Engine polls container state on a fixed interval.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine constructs an engine using cfg with defaults applied.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.WithDefaults()
	return &Engine{cfg: cfg, log: *cfg.Logger}
}

// AwaitProvisioned polls c until it is alive, successful, and reachable.
//
// A published provisioning error ends the wait at once with ProvisionFailedError.
// Otherwise the wait ends with ProvisionTimeoutError once timeout has elapsed;
// timeout 0 checks exactly once. The last sleep is clamped to the remaining
// budget, so the final poll lands on the deadline. A poll in progress is never
// interrupted; ctx only gates whether another poll is issued.
func (e *Engine) AwaitProvisioned(ctx context.Context, c fleet.Container, timeout time.Duration) (fleet.Snapshot, error) {
	if timeout < 0 {
		return fleet.Snapshot{}, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}
	start := e.cfg.Clock.Now()
	id := c.ID()
	e.log.Info().Str("container", id).Dur("timeout", timeout).Msg("waiting for container to provision")

	for {
		snap := fleet.Observe(c)
		observability.RecordProvisionPoll()
		e.log.Debug().
			Str("container", id).
			Bool("alive", snap.Alive).
			Str("status", string(snap.Status)).
			Str("endpoint", snap.Endpoint).
			Msg("provision poll")

		elapsed := clock.Since(e.cfg.Clock, start)
		if snap.Failed() {
			observability.RecordProvisionWait(observability.OutcomeFailed, elapsed)
			e.log.Warn().Str("container", id).Str("error", snap.Error).Msg("container reported provisioning error")
			return snap, &fleet.ProvisionFailedError{ContainerID: id, Reason: snap.Error}
		}
		if snap.Ready() {
			observability.RecordProvisionWait(observability.OutcomeReady, elapsed)
			e.log.Info().Str("container", id).Str("endpoint", snap.Endpoint).Dur("elapsed", elapsed).Msg("container provisioned")
			return snap, nil
		}
		if elapsed >= timeout {
			observability.RecordProvisionWait(observability.OutcomeTimeout, elapsed)
			e.log.Warn().Str("container", id).Dur("elapsed", elapsed).Str("status", string(snap.Status)).Msg("provisioning timed out")
			return snap, &fleet.ProvisionTimeoutError{
				ContainerID: id,
				Timeout:     timeout,
				Elapsed:     elapsed,
				Last:        snap,
			}
		}

		wait := e.cfg.PollInterval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		if err := ctx.Err(); err != nil {
			return snap, e.abandon(id, elapsed, err)
		}
		select {
		case <-ctx.Done():
			return snap, e.abandon(id, clock.Since(e.cfg.Clock, start), ctx.Err())
		case <-e.cfg.Clock.After(wait):
		}
	}
}

func (e *Engine) abandon(id string, elapsed time.Duration, cause error) error {
	observability.RecordProvisionWait(observability.OutcomeAborted, elapsed)
	e.log.Warn().Str("container", id).Err(cause).Msg("provision wait abandoned")
	return fmt.Errorf("provision: wait for %s abandoned after %s: %w", id, elapsed, cause)
}
