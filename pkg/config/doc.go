// Package config loads and saves the persisted "sync" configuration
// record: server URL, the local database file name, linked workspaces,
// ignore rules, and onboarding state. It is the only package that reads
// or writes the config file directly.
package config
