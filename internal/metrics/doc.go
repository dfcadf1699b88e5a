// Package metrics exposes Prometheus collectors for the signup coordinator.
// Collectors register on the default registry through promauto; callers use
// the helper functions rather than touching the vectors directly.
package metrics
