// Package logging provides the structured loggers used across the
// backend: a small package-level handle that every subsystem pulls a
// named child logger from, backed by zap so finishers and the
// scheduler can attach structured fields (block number, transaction
// id, op kind) instead of formatting them into strings.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	base   *zap.Logger = zap.NewNop()
	active bool
)

// Init installs the process-wide base logger. Passing debug=true switches
// to a development encoder (console output, caller info, no sampling).
func Init(debug bool) error {
	var l *zap.Logger
	var err error
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	active = true
	mu.Unlock()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// For returns a named child logger, e.g. logging.For("vhd.scheduler").
func For(name string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(name)
}

// Active reports whether Init has installed a real logger. Tests and
// short-lived CLI invocations that never call Init get a no-op logger
// instead of panicking on nil.
func Active() bool {
	mu.RLock()
	defer mu.RUnlock()
	return active
}
