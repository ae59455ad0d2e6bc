// Package registry provides an in-memory fleet registry with a simulated
// deployment agent.
//
// Ownership boundary:
// - version and profile catalog
// - container creation and destruction
// - simulated agent provisioning driven by a clock
//
// The simulated agent reads and writes provision results through the
// coordination store the same way a remote agent would: after each profile
// assignment it waits AgentConfig.ProvisionDelay and then overwrites the
// container's provision result path with "success" or "error". Container
// status is always read back from that path, so a marker written by the
// reconciler is visible as a non-success status until the agent replaces it.
package registry
