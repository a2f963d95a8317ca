// Package metrics exposes the Prometheus counters and histograms the
// ReconciliationEngine and the upload queue update during a sync, plus
// a /health, /ready, and /live handler set for the watch daemon.
package metrics
