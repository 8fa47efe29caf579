// Package metrics defines the Prometheus instruments of the pipeline caches.
//
// All recorders are nil-safe, so code paths that run without metrics (most
// tests) do not need to check for them.
package metrics
