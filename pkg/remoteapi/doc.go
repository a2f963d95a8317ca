// Package remoteapi implements the typed HTTP client. See client.go,
// wire.go, and the per-resource files.
package remoteapi
