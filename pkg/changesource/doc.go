// Package changesource unifies two producers of types.FileChangeEvent
// into one feed: a debounced local filesystem watcher and a reconnecting
// remote WebSocket stream. Both honor pause()/resume() so the
// reconciliation engine can suppress the feed around its own writes.
package changesource
