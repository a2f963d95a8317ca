// Package uploadqueue implements the per-path coalesced upload queue: at
// most one pending item per path, exponential backoff on failure, and a
// permanent-failure signal after five consecutive attempts. A background
// tick drains due items onto a channel the reconciliation engine
// consumes.
package uploadqueue
