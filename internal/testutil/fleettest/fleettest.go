// Package fleettest provides scripted fleet collaborators for tests.
package fleettest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/fleetctl/internal/clock"
	"github.com/danmuck/fleetctl/internal/fleet"
)

// State is one observable provisioning state.
type State struct {
	Alive    bool
	Status   fleet.ProvisionStatus
	Endpoint string
	Error    string
}

// Step applies State once At has elapsed on the container's clock.
type Step struct {
	At    time.Duration
	State State
}

// Ready is the state of a fully provisioned container.
func Ready(endpoint string) State {
	return State{Alive: true, Status: fleet.StatusSuccess, Endpoint: endpoint}
}

// Pending is the state of a live container still provisioning.
func Pending() State {
	return State{Alive: true, Status: fleet.StatusPending}
}

// Container is a fleet.Container whose state is either static or scripted on a clock.
type Container struct {
	mu       sync.Mutex
	id       string
	parent   string
	version  fleet.Version
	profiles []fleet.Profile
	state    State

	clk   clock.Clock
	start time.Time
	steps []Step

	reads          int
	setCalls       int
	setProfilesErr error
	onSetProfiles  func([]fleet.Profile)
}

// NewContainer returns a pending container on version.
func NewContainer(id string, version fleet.Version) *Container {
	return &Container{id: id, version: version, state: Pending()}
}

// WithParent sets the weak parent reference.
func (c *Container) WithParent(parent string) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = parent
	return c
}

// WithProfiles sets the current profile assignment without counting a call.
func (c *Container) WithProfiles(profiles ...fleet.Profile) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = fleet.CloneProfiles(profiles)
	return c
}

// WithState sets a static state.
func (c *Container) WithState(s State) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	return c
}

// Script makes state a function of time elapsed on clk since now.
// Before the first step the static state applies.
func (c *Container) Script(clk clock.Clock, steps ...Step) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clk = clk
	c.start = clk.Now()
	c.steps = append([]Step(nil), steps...)
	return c
}

// FailSetProfiles makes SetProfiles return err.
func (c *Container) FailSetProfiles(err error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setProfilesErr = err
	return c
}

// OnSetProfiles registers a hook run after a successful SetProfiles.
func (c *Container) OnSetProfiles(fn func([]fleet.Profile)) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSetProfiles = fn
	return c
}

// Reads counts liveness reads, one per observation.
func (c *Container) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// SetProfilesCalls counts SetProfiles invocations.
func (c *Container) SetProfilesCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCalls
}

func (c *Container) ID() string { return c.id }

func (c *Container) Parent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

func (c *Container) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.currentLocked().Alive
}

func (c *Container) ProvisionStatus() fleet.ProvisionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked().Status
}

func (c *Container) ProvisionError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked().Error
}

func (c *Container) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked().Endpoint
}

func (c *Container) Profiles() []fleet.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fleet.CloneProfiles(c.profiles)
}

func (c *Container) SetProfiles(profiles []fleet.Profile) error {
	c.mu.Lock()
	c.setCalls++
	if c.setProfilesErr != nil {
		err := c.setProfilesErr
		c.mu.Unlock()
		return err
	}
	c.profiles = fleet.CloneProfiles(profiles)
	hook := c.onSetProfiles
	c.mu.Unlock()
	if hook != nil {
		hook(profiles)
	}
	return nil
}

func (c *Container) Version() fleet.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Container) currentLocked() State {
	if c.clk == nil {
		return c.state
	}
	elapsed := c.clk.Now().Sub(c.start)
	out := c.state
	for _, step := range c.steps {
		if elapsed >= step.At {
			out = step.State
		}
	}
	return out
}

// Registry is an in-memory fleet.Registry with call counters and failure hooks.
type Registry struct {
	mu             sync.Mutex
	containers     map[string]fleet.Container
	profiles       map[string]map[string]fleet.Profile
	defaultVersion fleet.Version

	// CreateFunc answers Create; when nil Create registers a pending child.
	CreateFunc func(req fleet.CreateContainerRequest) ([]fleet.CreateContainerResult, error)
	// DestroyErr is returned by Destroy when set.
	DestroyErr error
	// LookupErr is returned by Lookup when set.
	LookupErr error

	Requests  []fleet.CreateContainerRequest
	Destroyed []string
}

// NewRegistry returns a registry whose default version is version.
func NewRegistry(version fleet.Version) *Registry {
	version.Default = true
	return &Registry{
		containers:     make(map[string]fleet.Container),
		profiles:       make(map[string]map[string]fleet.Profile),
		defaultVersion: version,
	}
}

// AddContainer registers c under its id.
func (r *Registry) AddContainer(c fleet.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.ID()] = c
}

// AddProfile registers p under its version.
func (r *Registry) AddProfile(p fleet.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.profiles[p.Version]
	if !ok {
		byName = make(map[string]fleet.Profile)
		r.profiles[p.Version] = byName
	}
	byName[p.Name] = p.Clone()
}

func (r *Registry) Lookup(_ context.Context, name string) (fleet.Container, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LookupErr != nil {
		return nil, false, r.LookupErr
	}
	c, ok := r.containers[name]
	return c, ok, nil
}

func (r *Registry) Create(_ context.Context, req fleet.CreateContainerRequest) ([]fleet.CreateContainerResult, error) {
	r.mu.Lock()
	r.Requests = append(r.Requests, req)
	fn := r.CreateFunc
	version := r.defaultVersion
	r.mu.Unlock()
	if fn != nil {
		results, err := fn(req)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if res.Container != nil {
				r.AddContainer(res.Container)
			}
		}
		return results, nil
	}
	c := NewContainer(req.Name, version).WithParent(req.Parent)
	r.AddContainer(c)
	return []fleet.CreateContainerResult{{Container: c}}, nil
}

func (r *Registry) Destroy(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DestroyErr != nil {
		return r.DestroyErr
	}
	if _, ok := r.containers[name]; !ok {
		return errors.New("fleettest: destroy unknown container " + name)
	}
	delete(r.containers, name)
	r.Destroyed = append(r.Destroyed, name)
	return nil
}

func (r *Registry) Profile(_ context.Context, version string, name string) (fleet.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[version][name]
	if !ok {
		return fleet.Profile{}, false, nil
	}
	return p.Clone(), true, nil
}

func (r *Registry) DefaultVersion(_ context.Context) (fleet.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultVersion, nil
}

// Store is a coord.Store that records writes and can be told to fail.
type Store struct {
	mu     sync.Mutex
	Err    error
	Writes []Write
}

// Write is one recorded coordination write.
type Write struct {
	Path  string
	Value string
}

func (s *Store) Write(_ context.Context, path string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Writes = append(s.Writes, Write{Path: path, Value: value})
	return nil
}

// Count returns the number of successful writes.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Writes)
}
