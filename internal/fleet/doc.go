// Package fleet owns the shared container, profile, and registry contracts.
//
// Ownership boundary:
// - container and profile data model
// - registry collaborator interface
// - provisioning error taxonomy
//
// Fleet does not poll, reconcile, or create containers itself; those flows live in
// provision, reconcile, and lifecycle.
package fleet
