package fleet

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContainerKind selects how the registry launches a new container.
type ContainerKind string

const (
	KindChild ContainerKind = "child"
)

// LaunchOptionJVMOpts carries JVM memory settings for child containers.
const LaunchOptionJVMOpts = "jvm_opts"

// CreateContainerRequest is consumed once by Registry.Create.
type CreateContainerRequest struct {
	RequestID     string
	Name          string
	Parent        string
	Kind          ContainerKind
	LaunchOptions map[string]string
}

// ChildRequest builds a request for a container hosted by parent.
func ChildRequest(name string, parent string) CreateContainerRequest {
	return CreateContainerRequest{
		RequestID:     uuid.NewString(),
		Name:          strings.TrimSpace(name),
		Parent:        strings.TrimSpace(parent),
		Kind:          KindChild,
		LaunchOptions: map[string]string{},
	}
}

// WithLaunchOption returns a copy of r with key set to value.
func (r CreateContainerRequest) WithLaunchOption(key string, value string) CreateContainerRequest {
	opts := make(map[string]string, len(r.LaunchOptions)+1)
	for k, v := range r.LaunchOptions {
		opts[k] = v
	}
	opts[strings.TrimSpace(key)] = value
	r.LaunchOptions = opts
	return r
}

// Validate enforces fields required before a request reaches the registry.
func (r CreateContainerRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRequest)
	}
	if r.Kind != KindChild {
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidRequest, r.Kind)
	}
	if strings.TrimSpace(r.Parent) == "" {
		return fmt.Errorf("%w: child %q missing parent", ErrInvalidRequest, r.Name)
	}
	return nil
}

// CreateContainerResult holds either a live container or the reason creation failed.
type CreateContainerResult struct {
	Container Container
	Failure   error
}

// Failed reports whether the registry attached a failure cause.
func (r CreateContainerResult) Failed() bool {
	return r.Failure != nil
}

// FirstResult returns the only entry callers consult from a batch create.
// Trailing entries are ignored even when present.
func FirstResult(results []CreateContainerResult) (CreateContainerResult, bool) {
	if len(results) == 0 {
		return CreateContainerResult{}, false
	}
	return results[0], true
}
