// Package events is an in-memory pub/sub bus for the sync engine's
// lifecycle signals: connection state, sync progress, upload outcomes,
// conflicts, and token lifecycle changes. Components publish by name and
// payload; they never hold a reference to their subscribers.
package events
