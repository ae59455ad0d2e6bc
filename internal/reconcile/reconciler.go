// Package reconcile converges a container's assigned profiles onto a desired set.
//
// Comparison is by configuration fingerprint, not by name: a renamed profile with
// unchanged configuration is already reconciled. When a change is needed the
// reconciler publishes a "switching profile" marker at the container's provision
// result path before touching the assignment, so a wait that starts right after
// the assignment is not satisfied by status left over from the previous profiles.
// The marker is advisory; the deployment agent may still be acting on the old
// assignment when the first poll runs.
//
// Reconciliations of the same container are not serialized here.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/fleetctl/internal/coord"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/logging"
	"github.com/danmuck/fleetctl/internal/observability"
	"github.com/danmuck/fleetctl/internal/provision"
	"github.com/rs/zerolog"
)

// ErrNoDesiredProfiles is returned when a reconciliation names no profiles.
var ErrNoDesiredProfiles = errors.New("reconcile: no desired profiles")

// Config controls how long a reconciliation waits for the agent.
type Config struct {
	// ProvisionTimeout bounds the wait after a change; zero checks once.
	ProvisionTimeout time.Duration
	Logger           *zerolog.Logger
}

// DefaultConfig waits up to five minutes for reprovisioning.
func DefaultConfig() Config {
	return Config{ProvisionTimeout: 5 * time.Minute}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	if c.Logger == nil {
		l := logging.Component("reconcile")
		c.Logger = &l
	}
	return c
}

// Result reports what one reconciliation did.
type Result struct {
	ContainerID string
	Changed     bool
	Previous    []string
	Desired     []string
	// Snapshot is the provisioned state observed after a change; zero for no-ops.
	Snapshot fleet.Snapshot
}

// Reconciler compares and applies profile assignments.
type Reconciler struct {
	registry fleet.Registry
	store    coord.Store
	waiter   provision.Waiter
	cfg      Config
	log      zerolog.Logger
}

// NewReconciler wires the registry, coordination store, and wait engine.
func NewReconciler(registry fleet.Registry, store coord.Store, waiter provision.Waiter, cfg Config) *Reconciler {
	cfg = cfg.WithDefaults()
	return &Reconciler{
		registry: registry,
		store:    store,
		waiter:   waiter,
		cfg:      cfg,
		log:      *cfg.Logger,
	}
}

// ProvisionTimeout is the standard wait budget applied after a change.
func (r *Reconciler) ProvisionTimeout() time.Duration {
	return r.cfg.ProvisionTimeout
}

// ReconcileProfile converges c onto the single profile named profileName,
// resolved against c's current version.
func (r *Reconciler) ReconcileProfile(ctx context.Context, c fleet.Container, profileName string) (Result, error) {
	return r.ReconcileProfiles(ctx, c, profileName)
}

// ReconcileProfiles converges c onto the named profile set.
func (r *Reconciler) ReconcileProfiles(ctx context.Context, c fleet.Container, names ...string) (Result, error) {
	res, err := r.reconcile(ctx, c, names)
	switch {
	case err != nil:
		observability.RecordReconcile(observability.ReconcileError)
	case res.Changed:
		observability.RecordReconcile(observability.ReconcileChanged)
	default:
		observability.RecordReconcile(observability.ReconcileNoop)
	}
	return res, err
}

func (r *Reconciler) reconcile(ctx context.Context, c fleet.Container, names []string) (Result, error) {
	if len(names) == 0 {
		return Result{}, ErrNoDesiredProfiles
	}
	id := c.ID()
	version := c.Version()
	r.log.Info().Str("container", id).Strs("profiles", names).Str("version", version.Name).Msg("switching profile")

	desired, err := r.Resolve(ctx, version.Name, names...)
	if err != nil {
		return Result{ContainerID: id}, err
	}
	current := c.Profiles()
	res := Result{
		ContainerID: id,
		Previous:    fleet.ProfileNames(fleet.SortProfiles(current)),
		Desired:     fleet.ProfileNames(fleet.SortProfiles(desired)),
	}
	if fleet.SameConfiguration(current, desired) {
		r.log.Debug().Str("container", id).Strs("current", res.Previous).Msg("profiles already reconciled")
		return res, nil
	}

	snap, err := r.Apply(ctx, c, desired)
	if err != nil {
		return res, err
	}
	res.Changed = true
	res.Snapshot = snap
	return res, nil
}

// Resolve looks up each distinct named profile in version, keeping first-seen order.
func (r *Reconciler) Resolve(ctx context.Context, version string, names ...string) ([]fleet.Profile, error) {
	out := make([]fleet.Profile, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		p, ok, err := r.registry.Profile(ctx, version, name)
		if err != nil {
			return nil, fmt.Errorf("reconcile: lookup profile %q in version %q: %w", name, version, err)
		}
		if !ok {
			return nil, &fleet.ProfileNotFoundError{Version: version, Name: name}
		}
		out = append(out, p)
	}
	return out, nil
}

// Apply assigns profiles and waits for the agent to reprovision c.
func (r *Reconciler) Apply(ctx context.Context, c fleet.Container, profiles []fleet.Profile) (fleet.Snapshot, error) {
	if err := r.Assign(ctx, c, profiles); err != nil {
		return fleet.Snapshot{}, err
	}
	return r.waiter.AwaitProvisioned(ctx, c, r.cfg.ProvisionTimeout)
}

// Assign writes the coordination marker and then sets profiles on c.
// A failed marker write aborts before the assignment is touched.
func (r *Reconciler) Assign(ctx context.Context, c fleet.Container, profiles []fleet.Profile) error {
	id := c.ID()
	path := coord.ProvisionResultPath(id)
	if err := r.store.Write(ctx, path, coord.SwitchingProfile); err != nil {
		observability.RecordCoordinationWrite(false)
		r.log.Error().Str("container", id).Str("path", path).Err(err).Msg("coordination marker write failed")
		return &fleet.CoordinationWriteFailedError{Path: path, Cause: err}
	}
	observability.RecordCoordinationWrite(true)

	if err := c.SetProfiles(fleet.CloneProfiles(profiles)); err != nil {
		return fmt.Errorf("reconcile: assign profiles to %s: %w", id, err)
	}
	r.log.Info().Str("container", id).Strs("profiles", fleet.ProfileNames(profiles)).Msg("profiles assigned")
	return nil
}
