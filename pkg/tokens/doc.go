// Package tokens implements token lifecycle management. See store.go and
// refresher.go.
package tokens
