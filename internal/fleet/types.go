package fleet

import (
	"context"
	"strings"
)

// ProvisionStatus is the agent-reported provisioning state of one container.
type ProvisionStatus string

const (
	StatusPending ProvisionStatus = "pending"
	StatusSuccess ProvisionStatus = "success"
	StatusFailure ProvisionStatus = "failure"
	StatusUnknown ProvisionStatus = "unknown"
)

// ParseProvisionStatus maps agent status text onto a known status, defaulting to unknown.
func ParseProvisionStatus(raw string) ProvisionStatus {
	switch ProvisionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending
	case StatusSuccess:
		return StatusSuccess
	case StatusFailure, "error":
		return StatusFailure
	default:
		return StatusUnknown
	}
}

// Version names one generation of profile definitions.
type Version struct {
	Name    string
	Default bool
}

// Container is a mutable handle to one managed remote agent.
//
// Status, error, and endpoint are written asynchronously by the agent itself;
// every accessor returns the latest value the registry has observed.
type Container interface {
	ID() string
	// Parent is a weak, name-based reference; empty for root containers.
	Parent() string
	IsAlive() bool
	ProvisionStatus() ProvisionStatus
	// ProvisionError is the agent-reported provisioning failure, empty when none.
	ProvisionError() string
	// Endpoint is the agent's management URL (ssh), set only once provisioned.
	Endpoint() string
	Profiles() []Profile
	SetProfiles(profiles []Profile) error
	Version() Version
}

// Registry is the source of truth for containers, versions, and profile definitions.
type Registry interface {
	Lookup(ctx context.Context, name string) (Container, bool, error)
	// Create may return zero or more results for one logical request.
	Create(ctx context.Context, req CreateContainerRequest) ([]CreateContainerResult, error)
	Destroy(ctx context.Context, name string) error
	Profile(ctx context.Context, version string, name string) (Profile, bool, error)
	DefaultVersion(ctx context.Context) (Version, error)
}

// Snapshot is one read of a container's provisioning triple plus its error.
type Snapshot struct {
	ContainerID string
	Alive       bool
	Status      ProvisionStatus
	Endpoint    string
	Error       string
}

// Observe reads the current provisioning state of c.
func Observe(c Container) Snapshot {
	return Snapshot{
		ContainerID: c.ID(),
		Alive:       c.IsAlive(),
		Status:      c.ProvisionStatus(),
		Endpoint:    c.Endpoint(),
		Error:       c.ProvisionError(),
	}
}

// Ready reports alive, successfully provisioned, and reachable.
func (s Snapshot) Ready() bool {
	return s.Alive && s.Status == StatusSuccess && strings.TrimSpace(s.Endpoint) != ""
}

// Failed reports whether the agent published a provisioning error.
func (s Snapshot) Failed() bool {
	return strings.TrimSpace(s.Error) != ""
}

// ProfileNames returns profile names in input order.
func ProfileNames(profiles []Profile) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Name)
	}
	return out
}
