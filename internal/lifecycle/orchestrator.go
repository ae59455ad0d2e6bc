package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/fleetctl/internal/clock"
	"github.com/danmuck/fleetctl/internal/coord"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/logging"
	"github.com/danmuck/fleetctl/internal/observability"
	"github.com/danmuck/fleetctl/internal/provision"
	"github.com/danmuck/fleetctl/internal/reconcile"
	"github.com/rs/zerolog"
)

var (
	// ErrNoCreateResult is returned when the registry answers a create with nothing usable.
	ErrNoCreateResult = errors.New("lifecycle: registry returned no create result")
	// ErrContainerMismatch is returned when a created name resolves to another container.
	ErrContainerMismatch = errors.New("lifecycle: container id mismatch")
)

// DefaultJVMOpts are the launch options applied to every child container.
const DefaultJVMOpts = "-Xms1024m -Xmx1024m"

// Config controls orchestration timing and launch options.
type Config struct {
	// ProvisionTimeout bounds each provisioning wait. Zero checks readiness once;
	// DefaultConfig supplies five minutes.
	ProvisionTimeout time.Duration
	PollInterval     time.Duration
	// SettleDelay is slept before each create or destroy to let the fleet settle.
	SettleDelay   time.Duration
	LaunchOptions map[string]string
	// DisableSerialization turns off the per-container mutex around operations.
	DisableSerialization bool
	Clock                clock.Clock
	Logger               *zerolog.Logger
	// Waiter overrides the wait engine built from PollInterval and Clock.
	Waiter provision.Waiter
}

// DefaultConfig waits five minutes for provisioning, polling every two seconds.
func DefaultConfig() Config {
	return Config{
		ProvisionTimeout: 5 * time.Minute,
		PollInterval:     2 * time.Second,
		LaunchOptions:    map[string]string{fleet.LaunchOptionJVMOpts: DefaultJVMOpts},
		Clock:            clock.Real(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.LaunchOptions == nil {
		c.LaunchOptions = def.LaunchOptions
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Logger == nil {
		l := logging.Component("lifecycle")
		c.Logger = &l
	}
	return c
}

// Orchestrator composes registry, reconciler, and wait engine into workflows.
type Orchestrator struct {
	registry   fleet.Registry
	reconciler *reconcile.Reconciler
	waiter     provision.Waiter
	cfg        Config
	log        zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*containerLock
}

type containerLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrchestrator builds the wait engine and reconciler from cfg.
func NewOrchestrator(registry fleet.Registry, store coord.Store, cfg Config) *Orchestrator {
	cfg = cfg.WithDefaults()
	waiter := cfg.Waiter
	if waiter == nil {
		waiter = provision.NewEngine(provision.Config{
			PollInterval: cfg.PollInterval,
			Clock:        cfg.Clock,
		})
	}
	rec := reconcile.NewReconciler(registry, store, waiter, reconcile.Config{
		ProvisionTimeout: cfg.ProvisionTimeout,
	})
	return &Orchestrator{
		registry:   registry,
		reconciler: rec,
		waiter:     waiter,
		cfg:        cfg,
		log:        *cfg.Logger,
		locks:      make(map[string]*containerLock),
	}
}

// Reconciler exposes the reconciler the orchestrator assigns profiles with.
func (o *Orchestrator) Reconciler() *reconcile.Reconciler {
	return o.reconciler
}

// CreateChild creates name under parentID, assigns profileName from the default
// version, and waits for the container to provision.
//
// The registry may answer with several results; only the first is consulted and
// its failure, if any, is returned verbatim as a CreationFailedError without
// waiting.
func (o *Orchestrator) CreateChild(ctx context.Context, name string, parentID string, profileName string) (fleet.Container, error) {
	name = strings.TrimSpace(name)
	parentID = strings.TrimSpace(parentID)
	o.settle()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, ok, err := o.registry.Lookup(ctx, parentID); err != nil {
		return nil, fmt.Errorf("lifecycle: lookup parent %q: %w", parentID, err)
	} else if !ok {
		return nil, &fleet.ContainerNotFoundError{Name: parentID}
	}

	unlock := o.lockContainer(name)
	defer unlock()

	req := fleet.ChildRequest(name, parentID)
	for k, v := range o.cfg.LaunchOptions {
		req = req.WithLaunchOption(k, v)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o.log.Info().Str("container", name).Str("parent", parentID).Str("request", req.RequestID).Msg("creating child container")

	results, err := o.registry.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create child %s: %w", name, err)
	}
	first, ok := fleet.FirstResult(results)
	if !ok || (!first.Failed() && first.Container == nil) {
		observability.RecordCreate(observability.CreateNoResult)
		return nil, fmt.Errorf("%w: %s", ErrNoCreateResult, name)
	}
	if len(results) > 1 {
		o.log.Debug().Str("container", name).Int("results", len(results)).Msg("ignoring trailing create results")
	}
	if first.Failed() {
		observability.RecordCreate(observability.CreateFailed)
		o.log.Warn().Str("container", name).Err(first.Failure).Msg("child container creation failed")
		return nil, &fleet.CreationFailedError{Name: name, Cause: first.Failure}
	}
	observability.RecordCreate(observability.CreateOK)
	c := first.Container

	version, err := o.registry.DefaultVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolve default version: %w", err)
	}
	profiles, err := o.reconciler.Resolve(ctx, version.Name, profileName)
	if err != nil {
		return nil, err
	}
	if err := o.reconciler.Assign(ctx, c, profiles); err != nil {
		return nil, err
	}
	if _, err := o.waiter.AwaitProvisioned(ctx, c, o.cfg.ProvisionTimeout); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateAndVerifyChild creates a child and confirms the registry resolves its
// name to the same container id.
func (o *Orchestrator) CreateAndVerifyChild(ctx context.Context, name string, parentID string, profileName string) (fleet.Container, error) {
	created, err := o.CreateChild(ctx, name, parentID, profileName)
	if err != nil {
		return nil, err
	}
	found, ok, err := o.registry.Lookup(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: lookup %q: %w", name, err)
	}
	if !ok {
		return nil, &fleet.ContainerNotFoundError{Name: name}
	}
	if found.ID() != created.ID() {
		return nil, fmt.Errorf("%w: created %s, registry has %s", ErrContainerMismatch, created.ID(), found.ID())
	}
	return found, nil
}

// SetProfile reconciles the named container onto profileName.
func (o *Orchestrator) SetProfile(ctx context.Context, name string, profileName string) (reconcile.Result, error) {
	name = strings.TrimSpace(name)
	c, ok, err := o.registry.Lookup(ctx, name)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("lifecycle: lookup %q: %w", name, err)
	}
	if !ok {
		return reconcile.Result{}, &fleet.ContainerNotFoundError{Name: name}
	}
	unlock := o.lockContainer(name)
	defer unlock()
	return o.reconciler.ReconcileProfile(ctx, c, profileName)
}

// Destroy removes name from the fleet. An absent container is already destroyed;
// every other failure is logged and dropped.
func (o *Orchestrator) Destroy(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	o.settle()

	_, ok, err := o.registry.Lookup(ctx, name)
	if err != nil {
		observability.RecordDestroy("error")
		o.log.Warn().Str("container", name).Err(err).Msg("destroy lookup failed")
		return
	}
	if !ok {
		observability.RecordDestroy("absent")
		o.log.Debug().Str("container", name).Msg("container already destroyed")
		return
	}

	unlock := o.lockContainer(name)
	defer unlock()
	if err := o.registry.Destroy(ctx, name); err != nil {
		observability.RecordDestroy("error")
		o.log.Warn().Str("container", name).Err(err).Msg("destroy failed")
		return
	}
	observability.RecordDestroy("ok")
	o.log.Info().Str("container", name).Msg("container destroyed")
}

func (o *Orchestrator) settle() {
	if o.cfg.SettleDelay > 0 {
		o.cfg.Clock.Sleep(o.cfg.SettleDelay)
	}
}

// lockContainer serializes operations on one container name.
func (o *Orchestrator) lockContainer(name string) func() {
	if o.cfg.DisableSerialization {
		return func() {}
	}
	o.locksMu.Lock()
	l := o.locks[name]
	if l == nil {
		l = &containerLock{}
		o.locks[name] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, name)
		}
		o.locksMu.Unlock()
	}
}
