// Package store defines the aggregate persistence interface. The policy
// and decisionlog subsystems each define their own store interface; the
// composite Store composes them. Backends: Postgres, SQLite, MongoDB and
// Memory.
package store

import (
	"context"

	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/policy"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem store.
type Store interface {
	policy.Store
	decisionlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
