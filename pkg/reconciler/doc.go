// Package reconciler implements the ReconciliationEngine: manifest diff
// against the local index, the three-way write plan for downloads, the
// upload path for local changes, and conflict resolution via
// pkg/conflict. A single reconcile cycle is serialized by the Engine's
// syncing flag; concurrent callers receive types.ErrSyncInProgress.
package reconciler
