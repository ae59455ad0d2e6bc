package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/fleetctl/internal/coord"
	"github.com/danmuck/fleetctl/internal/fleet"
)

// Assignment errors returned by SetProfiles.
var (
	ErrContainerNotAlive = errors.New("registry: container not alive")
	ErrVersionMismatch   = errors.New("registry: profile version mismatch")
)

// container is the registry's fleet.Container. Agent-owned fields are brought up
// to date lazily on every read.
type container struct {
	reg           *Memory
	id            string
	parent        string
	launchOptions map[string]string

	mu           sync.Mutex
	version      fleet.Version
	profiles     []fleet.Profile
	alive        bool
	assignedAt   time.Time
	generation   uint64
	published    bool
	endpoint     string
	provisionErr string
}

func (c *container) ID() string { return c.id }

func (c *container) Parent() string { return c.parent }

func (c *container) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// ProvisionStatus reads the result the agent last published; a missing result
// is pending and any non-result value, such as a coordination marker, is unknown.
// Until the agent publishes for the current assignment, a leftover result from
// an earlier one reads as pending.
func (c *container) ProvisionStatus() fleet.ProvisionStatus {
	c.sync()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.reg.cfg.Store.Get(context.Background(), coord.ProvisionResultPath(c.id))
	if errors.Is(err, coord.ErrNotFound) {
		return fleet.StatusPending
	}
	if err != nil {
		return fleet.StatusUnknown
	}
	status := fleet.ParseProvisionStatus(entry.Value)
	if !c.published && (status == fleet.StatusSuccess || status == fleet.StatusFailure) {
		return fleet.StatusPending
	}
	return status
}

func (c *container) ProvisionError() string {
	c.sync()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provisionErr
}

func (c *container) Endpoint() string {
	c.sync()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

func (c *container) Profiles() []fleet.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fleet.CloneProfiles(c.profiles)
}

// SetProfiles replaces the assignment and restarts the agent's provisioning delay.
func (c *container) SetProfiles(profiles []fleet.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return fmt.Errorf("%w: %s", ErrContainerNotAlive, c.id)
	}
	for _, p := range profiles {
		if p.Version != c.version.Name {
			return fmt.Errorf("%w: profile %s is in version %q, container %s uses %q",
				ErrVersionMismatch, p.Name, p.Version, c.id, c.version.Name)
		}
	}
	c.profiles = fleet.CloneProfiles(profiles)
	c.assignedAt = c.reg.cfg.Clock.Now()
	c.generation++
	c.published = false
	c.provisionErr = ""
	return nil
}

func (c *container) Version() fleet.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// sync runs the simulated agent: once the provision delay has passed since the
// last assignment, publish the result for that assignment exactly once. The
// result is written under c.mu so it cannot land after a newer assignment.
func (c *container) sync() {
	agent := c.reg.cfg.Agent
	c.mu.Lock()
	if !c.alive || c.published || c.reg.cfg.Clock.Now().Sub(c.assignedAt) < agent.ProvisionDelay {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	profiles := c.profiles
	needEndpoint := c.endpoint == ""
	c.mu.Unlock()

	// allocateEndpoint takes the registry lock, which orders before c.mu.
	failedProfile, fails := c.reg.failsProvisioning(profiles)
	result := resultSuccess
	endpoint := ""
	if fails {
		result = resultError
	} else if needEndpoint {
		endpoint = c.reg.allocateEndpoint()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.published || !c.alive {
		return
	}
	if err := c.reg.cfg.Store.Write(context.Background(), coord.ProvisionResultPath(c.id), result); err != nil {
		c.reg.log.Warn().Str("container", c.id).Err(err).Msg("agent could not publish provision result")
		return
	}
	c.published = true
	if fails {
		c.provisionErr = fmt.Sprintf("profile %s failed to provision", failedProfile)
		c.reg.log.Warn().Str("container", c.id).Str("profile", failedProfile).Msg("agent reported provisioning error")
		return
	}
	if c.endpoint == "" {
		c.endpoint = endpoint
	}
	c.reg.log.Debug().Str("container", c.id).Str("endpoint", c.endpoint).Msg("agent reported provisioning success")
}
