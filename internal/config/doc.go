// Package config holds socksd's runtime configuration.
//
// A Config is the mutable, user-facing form assembled from flags and an
// optional YAML file. Snapshot validates it into an immutable *Snapshot, and
// Store publishes snapshots atomically so that a reload never hands a session
// a half-updated view.
package config
