package decisionlog

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/arbiter/id"
)

// ErrNotFound is returned by stores when an entry does not exist.
var ErrNotFound = errors.New("arbiter: decision log not found")

// Store defines persistence operations for decision logs.
type Store interface {
	// CreateDecisionLog persists a new entry.
	CreateDecisionLog(ctx context.Context, e *Entry) error

	// GetDecisionLog retrieves an entry by ID.
	GetDecisionLog(ctx context.Context, logID id.DecisionLogID) (*Entry, error)

	// ListDecisionLogs returns entries matching the filter, newest first.
	ListDecisionLogs(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountDecisionLogs returns the number of entries matching the filter.
	CountDecisionLogs(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeDecisionLogs removes entries older than the given time.
	PurgeDecisionLogs(ctx context.Context, before time.Time) (int64, error)

	// DeleteDecisionLogsByTenant removes all entries for a tenant.
	DeleteDecisionLogsByTenant(ctx context.Context, tenantID string) error
}
