// Package crypto implements CryptoCore. See crypto.go.
package crypto
