// Package log wraps zerolog with the sync engine's conventions: a global
// logger configured once at process start, and WithComponent child
// loggers so every log line carries the name of the component that
// wrote it.
package log
