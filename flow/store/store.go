// Package store provides flow.Store implementations: an in-memory store
// for tests and single-process use, a SQLite store for zero-setup
// persistence, and a MySQL store for shared deployments.
package store

import "errors"

// ErrNotFound is returned when the requested run id has no stored state.
var ErrNotFound = errors.New("store: run not found")

// ErrExists is returned by CreateRun when the run id is already taken.
var ErrExists = errors.New("store: run already exists")
