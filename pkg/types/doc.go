// Package types defines the data model shared by every sync engine
// component: the server-authoritative Note and its compact projections,
// the local path/id mapping, the change-event and upload-queue shapes,
// and the sentinel error taxonomy components return.
//
// Nothing in this package talks to disk or network; it is pure data plus
// the ClassifyError helper used for structured logging and metrics
// labels.
package types
