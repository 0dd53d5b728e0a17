package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrParentNotFound is returned when a child is written before its parent.
	ErrParentNotFound = errors.New("parent entity not found")
)

// Repository is the store surface the import pipeline depends on. Every
// lookup is scoped by entity kind and parent chain.
type Repository interface {
	// ListIDs returns the ids of all entities of kind directly under scope.
	ListIDs(ctx context.Context, kind EntityKind, scope Scope) (map[string]struct{}, error)
	Exists(ctx context.Context, kind EntityKind, id string, scope Scope) (bool, error)

	// Create writes one entity. Creating an entity that already exists is
	// a no-op and leaves its CreateDate untouched.
	Create(ctx context.Context, e Entity) error

	// CreateBatch writes entities in slice order.
	CreateBatch(ctx context.Context, entities []Entity) error
}

// Store is the full taxonomy store used by the CRUD commands.
type Store interface {
	Repository

	Get(ctx context.Context, kind EntityKind, id string, scope Scope) (*Entity, error)

	// List returns the entities of kind under scope ordered by name.
	List(ctx context.Context, kind EntityKind, scope Scope) ([]Entity, error)

	// Delete removes the entity and everything below it. It returns
	// ErrNotFound when the entity does not exist.
	Delete(ctx context.Context, kind EntityKind, id string, scope Scope) error
}

// ImportRun is one entry of the import history.
type ImportRun struct {
	ID         string           `json:"id"`
	RequestID  string           `json:"requestId"`
	Mode       string           `json:"mode"`
	Status     JobStatus        `json:"status"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Result     *ImportJobResult `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ImportHistory is implemented by stores that can persist import runs.
type ImportHistory interface {
	RecordImportRun(ctx context.Context, run ImportRun) error

	// ListImportRuns returns up to limit runs, newest first.
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)
}

// ImportHistoryPruner is implemented by stores that can drop old runs.
type ImportHistoryPruner interface {
	// PruneImportRuns deletes runs started before cutoff and returns how
	// many were removed.
	PruneImportRuns(ctx context.Context, cutoff time.Time) (int, error)
}
