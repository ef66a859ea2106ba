// Package types defines the domain model shared by the idsync reconciliation
// engine: identities, matched and resolved rows, pending links, plan
// artifacts, run configuration, and standard errors.
// See docs/ARCHITECTURE.md § Domain Model.
package types
