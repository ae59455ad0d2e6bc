package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/fleetctl/internal/clock"
	"github.com/danmuck/fleetctl/internal/coord"
	"github.com/danmuck/fleetctl/internal/fleet"
	"github.com/danmuck/fleetctl/internal/logging"
	"github.com/rs/zerolog"
)

// Registry errors.
var (
	ErrVersionExists   = errors.New("registry: version already exists")
	ErrVersionNotFound = errors.New("registry: version not found")
	ErrProfileExists   = errors.New("registry: profile already exists")
	ErrContainerExists = errors.New("registry: container already exists")
	ErrParentNotAlive  = errors.New("registry: parent container not alive")
	ErrHasChildren     = errors.New("registry: container has children")
	ErrInvalidName     = errors.New("registry: invalid name")
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// ResultStore is the coordination store view the simulated agent needs.
type ResultStore interface {
	coord.Store
	Get(ctx context.Context, path string) (coord.Entry, error)
}

// AgentConfig shapes the simulated deployment agent.
type AgentConfig struct {
	// ProvisionDelay is the time between an assignment and the agent's result.
	ProvisionDelay time.Duration
	// FailProfiles names profiles whose assignment ends in a provisioning error.
	FailProfiles []string
	EndpointHost string
	BaseSSHPort  int
}

// Config wires the registry's clock, store, and agent behavior.
type Config struct {
	Clock  clock.Clock
	Store  ResultStore
	Agent  AgentConfig
	Logger *zerolog.Logger
}

// DefaultConfig provisions after four seconds on the real clock.
func DefaultConfig() Config {
	return Config{
		Clock: clock.Real(),
		Agent: AgentConfig{
			ProvisionDelay: 4 * time.Second,
			EndpointHost:   "localhost",
			BaseSSHPort:    8101,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Store == nil {
		c.Store = coord.NewMemoryStore()
	}
	if c.Agent.ProvisionDelay < 0 {
		c.Agent.ProvisionDelay = 0
	}
	if strings.TrimSpace(c.Agent.EndpointHost) == "" {
		c.Agent.EndpointHost = def.Agent.EndpointHost
	}
	if c.Agent.BaseSSHPort <= 0 {
		c.Agent.BaseSSHPort = def.Agent.BaseSSHPort
	}
	if c.Logger == nil {
		l := logging.Component("registry")
		c.Logger = &l
	}
	return c
}

// Memory is an in-memory fleet.Registry.
type Memory struct {
	cfg Config
	log zerolog.Logger

	mu             sync.RWMutex
	versions       map[string]map[string]fleet.Profile
	defaultVersion string
	containers     map[string]*container
	failCreate     map[string]error
	failProfiles   map[string]struct{}
	nextPort       int
}

// NewMemory constructs an empty registry.
func NewMemory(cfg Config) *Memory {
	cfg = cfg.WithDefaults()
	fail := make(map[string]struct{}, len(cfg.Agent.FailProfiles))
	for _, name := range cfg.Agent.FailProfiles {
		if v := strings.TrimSpace(name); v != "" {
			fail[v] = struct{}{}
		}
	}
	return &Memory{
		cfg:          cfg,
		log:          *cfg.Logger,
		versions:     make(map[string]map[string]fleet.Profile),
		containers:   make(map[string]*container),
		failCreate:   make(map[string]error),
		failProfiles: fail,
		nextPort:     cfg.Agent.BaseSSHPort,
	}
}

// Store returns the coordination store the simulated agent publishes to.
func (m *Memory) Store() ResultStore {
	return m.cfg.Store
}

// AddVersion registers a version; the first version or one flagged Default becomes default.
func (m *Memory) AddVersion(v fleet.Version) error {
	name := strings.TrimSpace(v.Name)
	if !isValidName(name) {
		return fmt.Errorf("%w: version %q", ErrInvalidName, v.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[name]; ok {
		return fmt.Errorf("%w: %s", ErrVersionExists, name)
	}
	m.versions[name] = make(map[string]fleet.Profile)
	if v.Default || m.defaultVersion == "" {
		m.defaultVersion = name
	}
	return nil
}

// AddProfile registers p under its version.
func (m *Memory) AddProfile(p fleet.Profile) error {
	name := strings.TrimSpace(p.Name)
	if !isValidName(name) {
		return fmt.Errorf("%w: profile %q", ErrInvalidName, p.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.versions[p.Version]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, p.Version)
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("%w: %s/%s", ErrProfileExists, p.Version, name)
	}
	p = p.Clone()
	p.Name = name
	byName[name] = p
	return nil
}

// ListProfiles returns the profiles of version ordered by name.
func (m *Memory) ListProfiles(version string) ([]fleet.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byName, ok := m.versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	out := make([]fleet.Profile, 0, len(byName))
	for _, p := range byName {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddRoot registers an already-provisioned root container on the default version.
func (m *Memory) AddRoot(ctx context.Context, name string) (fleet.Container, error) {
	name = strings.TrimSpace(name)
	if !isValidName(name) {
		return nil, fmt.Errorf("%w: container %q", ErrInvalidName, name)
	}
	m.mu.Lock()
	if _, ok := m.containers[name]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrContainerExists, name)
	}
	c := m.newContainerLocked(name, "")
	c.endpoint = m.endpointLocked()
	m.containers[name] = c
	m.mu.Unlock()

	if err := m.cfg.Store.Write(ctx, coord.ProvisionResultPath(name), resultSuccess); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.published = true
	c.mu.Unlock()
	return c, nil
}

// FailNextCreate makes the next Create for name report cause as its failure.
func (m *Memory) FailNextCreate(name string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate[strings.TrimSpace(name)] = cause
}

// Names returns known container names in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.containers))
	for name := range m.containers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Lookup(ctx context.Context, name string) (fleet.Container, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[strings.TrimSpace(name)]
	if !ok {
		return nil, false, nil
	}
	return c, true, nil
}

// Create launches one container per request. Registry-side problems such as an
// unknown parent are reported as a failed result rather than an error.
func (m *Memory) Create(ctx context.Context, req fleet.CreateContainerRequest) ([]fleet.CreateContainerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := req.Name
	if !isValidName(name) {
		return nil, fmt.Errorf("%w: container %q", ErrInvalidName, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cause, ok := m.failCreate[name]; ok {
		delete(m.failCreate, name)
		return []fleet.CreateContainerResult{{Failure: cause}}, nil
	}
	if _, ok := m.containers[name]; ok {
		return []fleet.CreateContainerResult{{Failure: fmt.Errorf("%w: %s", ErrContainerExists, name)}}, nil
	}
	parent, ok := m.containers[req.Parent]
	if !ok {
		return []fleet.CreateContainerResult{{Failure: &fleet.ContainerNotFoundError{Name: req.Parent}}}, nil
	}
	if !parent.IsAlive() {
		return []fleet.CreateContainerResult{{Failure: fmt.Errorf("%w: %s", ErrParentNotAlive, req.Parent)}}, nil
	}

	c := m.newContainerLocked(name, req.Parent)
	c.launchOptions = copyOptions(req.LaunchOptions)
	m.containers[name] = c
	m.log.Info().
		Str("container", name).
		Str("parent", req.Parent).
		Str("request", req.RequestID).
		Msg("child container launched")
	return []fleet.CreateContainerResult{{Container: c}}, nil
}

// Destroy stops and forgets a container. Containers that still host children
// cannot be destroyed.
func (m *Memory) Destroy(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[name]
	if !ok {
		return &fleet.ContainerNotFoundError{Name: name}
	}
	for _, other := range m.containers {
		if other.parent == name {
			return fmt.Errorf("%w: %s hosts %s", ErrHasChildren, name, other.id)
		}
	}
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	delete(m.containers, name)
	m.log.Info().Str("container", name).Msg("container destroyed")
	return nil
}

func (m *Memory) Profile(ctx context.Context, version string, name string) (fleet.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return fleet.Profile{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byName, ok := m.versions[version]
	if !ok {
		return fleet.Profile{}, false, nil
	}
	p, ok := byName[strings.TrimSpace(name)]
	if !ok {
		return fleet.Profile{}, false, nil
	}
	return p.Clone(), true, nil
}

func (m *Memory) DefaultVersion(ctx context.Context) (fleet.Version, error) {
	if err := ctx.Err(); err != nil {
		return fleet.Version{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultVersion == "" {
		return fleet.Version{}, fmt.Errorf("%w: no default version", ErrVersionNotFound)
	}
	return fleet.Version{Name: m.defaultVersion, Default: true}, nil
}

func (m *Memory) newContainerLocked(name string, parent string) *container {
	return &container{
		reg:        m,
		id:         name,
		parent:     parent,
		version:    fleet.Version{Name: m.defaultVersion, Default: true},
		alive:      true,
		assignedAt: m.cfg.Clock.Now(),
	}
}

func (m *Memory) endpointLocked() string {
	port := m.nextPort
	m.nextPort++
	return fmt.Sprintf("ssh://%s:%d", m.cfg.Agent.EndpointHost, port)
}

func (m *Memory) allocateEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpointLocked()
}

func (m *Memory) failsProvisioning(profiles []fleet.Profile) (string, bool) {
	for _, p := range profiles {
		if _, ok := m.failProfiles[p.Name]; ok {
			return p.Name, true
		}
	}
	return "", false
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// isValidName accepts lowercase alphanumerics separated by single '.', '-', or '_'.
func isValidName(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
