// Package orchestrator owns component lifetimes: it brings up the
// change source, the upload queue worker, and the periodic drift scan
// around a pkg/reconciler.Engine, gates startup on an unlocked
// pkg/crypto.Core, and pauses the change feed around every reconcile
// cycle so the engine never re-uploads its own writes.
package orchestrator
