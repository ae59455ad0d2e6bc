package fleet

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrInvalidRequest          = errors.New("fleet: invalid create request")
	ErrCreationFailed          = errors.New("fleet: container creation failed")
	ErrContainerNotFound       = errors.New("fleet: container not found")
	ErrProfileNotFound         = errors.New("fleet: profile not found")
	ErrCoordinationWriteFailed = errors.New("fleet: coordination write failed")
	ErrProvisionFailed         = errors.New("fleet: provisioning failed")
	ErrProvisionTimeout        = errors.New("fleet: provisioning timed out")
)

// CreationFailedError carries the registry-reported failure for one create request.
type CreationFailedError struct {
	Name  string
	Cause error
}

func (e *CreationFailedError) Error() string {
	return fmt.Sprintf("fleet: error creating child container %s: %v", e.Name, e.Cause)
}

func (e *CreationFailedError) Unwrap() []error { return joinCause(ErrCreationFailed, e.Cause) }

// ContainerNotFoundError reports a name the registry does not know.
type ContainerNotFoundError struct {
	Name string
}

func (e *ContainerNotFoundError) Error() string {
	return fmt.Sprintf("fleet: container %q not found", e.Name)
}

func (e *ContainerNotFoundError) Unwrap() error { return ErrContainerNotFound }

// ProfileNotFoundError reports a profile absent from the resolved version.
type ProfileNotFoundError struct {
	Version string
	Name    string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("fleet: expected to find profile %q in version %q", e.Name, e.Version)
}

func (e *ProfileNotFoundError) Unwrap() error { return ErrProfileNotFound }

// CoordinationWriteFailedError reports a marker that could not be published.
type CoordinationWriteFailedError struct {
	Path  string
	Cause error
}

func (e *CoordinationWriteFailedError) Error() string {
	return fmt.Sprintf("fleet: write coordination marker %s: %v", e.Path, e.Cause)
}

func (e *CoordinationWriteFailedError) Unwrap() []error {
	return joinCause(ErrCoordinationWriteFailed, e.Cause)
}

// ProvisionFailedError is an agent self-reported provisioning failure.
type ProvisionFailedError struct {
	ContainerID string
	Reason      string
}

func (e *ProvisionFailedError) Error() string {
	return fmt.Sprintf("fleet: container %s failed to provision: %s", e.ContainerID, e.Reason)
}

func (e *ProvisionFailedError) Unwrap() error { return ErrProvisionFailed }

// ProvisionTimeoutError reports that no terminal state was observed within the budget.
type ProvisionTimeoutError struct {
	ContainerID string
	Timeout     time.Duration
	Elapsed     time.Duration
	Last        Snapshot
}

func (e *ProvisionTimeoutError) Error() string {
	return fmt.Sprintf(
		"fleet: could not provision %s after %s (timeout %s): alive=%t status=%s endpoint=%q",
		e.ContainerID,
		e.Elapsed,
		e.Timeout,
		e.Last.Alive,
		e.Last.Status,
		e.Last.Endpoint,
	)
}

func (e *ProvisionTimeoutError) Unwrap() error { return ErrProvisionTimeout }

func joinCause(sentinel error, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
