// Package store persists estimate nodes under an optimistic concurrency
// protocol: every write passes a version check, and a stale writer gets a
// conflict error instead of silently overwriting newer work.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/diligence-engine/internal/model"
)

// NodeFilter specifies criteria for listing nodes.
type NodeFilter struct {
	Workstream string         `json:"workstream,omitempty"`
	Kind       model.NodeKind `json:"kind,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
	RootsOnly  bool           `json:"roots_only,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
}

// NodeStore is the persistence interface for estimate nodes. SaveNode is the
// only sanctioned write path; there is no unguarded overwrite.
type NodeStore interface {
	// SaveNode stores the node if expectedVersion matches the stored
	// version, returning the new version. expectedVersion 0 means create.
	SaveNode(ctx context.Context, node *model.EstimateNode, expectedVersion int) (int, error)

	// GetNode returns the node, or (nil, nil) when the id is unknown or
	// the stored record is corrupt (logged, never fatal).
	GetNode(ctx context.Context, id string) (*model.EstimateNode, error)

	// ListNodes returns nodes matching the filter, newest first. Corrupt
	// rows are skipped with a warning.
	ListNodes(ctx context.Context, filter NodeFilter) ([]*model.EstimateNode, error)

	Migrate(ctx context.Context) error
	Close() error
}

// ConflictError reports a failed version check. It names both versions so
// the caller can reload, re-apply intent, and retry with the current one.
type ConflictError struct {
	ID       string
	Expected int
	Current  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: node %s modified concurrently: expected version %d, stored version is %d; reload and retry",
		e.ID, e.Expected, e.Current)
}

// IsConflict reports whether err is a version-check failure, so callers can
// distinguish it from validation errors and implement reload-and-retry.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
