// Package types defines the public contracts shared by the control-loop
// engine: the resource object model, watch events and their classification,
// lease records and the lease store abstraction, the reconciliation handler
// contract, and the logging/metrics interfaces.
//
// The root controlloop package re-exports the commonly used names via type
// aliases, so most consumers never import this package directly. Internal
// packages depend on types directly to avoid import cycles with the root
// package.
package types
