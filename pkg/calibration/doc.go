// Package calibration defines the types used by the AutoBone job. It
// contains:
//
//   - Phase: the discrete steps of a job
//   - State: the persisted runtime state managed by the daemon
//   - Status: a synthesized view model returned by HTTP APIs
//
// These types are shared across daemon and client code so the JSON contract
// has one definition.
package calibration
