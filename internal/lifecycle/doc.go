// Package lifecycle owns container create and destroy workflows.
//
// Ownership boundary:
// - child container creation against the registry
// - initial profile assignment and readiness wait
// - best-effort destruction
//
// Creation is never retried: a failure reported by the registry is terminal for
// the call and the caller decides whether to submit a new request.
package lifecycle
