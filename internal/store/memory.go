// Package store provides the taxonomy store implementations: an in-memory
// store for tests and local runs, PostgreSQL via pgx, and DynamoDB via the
// AWS SDK.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// Memory is a mutex-guarded in-memory store. It also keeps import history.
type Memory struct {
	mu       sync.RWMutex
	entities map[core.EntityKey]core.Entity
	runs     []core.ImportRun
	writes   int
}

var (
	_ core.Store         = (*Memory)(nil)
	_ core.ImportHistory = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{entities: make(map[core.EntityKey]core.Entity)}
}

func (m *Memory) ListIDs(ctx context.Context, kind core.EntityKind, scope core.Scope) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[string]struct{})
	for key := range m.entities {
		if key.Kind == kind && key.Scope == scope {
			ids[key.ID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *Memory) Exists(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entities[core.EntityKey{Kind: kind, ID: id, Scope: scope}]
	return ok, nil
}

func (m *Memory) Create(ctx context.Context, e core.Entity) error {
	return m.CreateBatch(ctx, []core.Entity{e})
}

// CreateBatch applies entities in order. A child whose parent is neither
// stored nor earlier in the batch fails with core.ErrParentNotFound; the
// entities before it stay written.
func (m *Memory) CreateBatch(ctx context.Context, entities []core.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	for _, e := range entities {
		if !m.parentExists(e) {
			return core.ErrParentNotFound
		}
		key := e.Key()
		if _, ok := m.entities[key]; ok {
			continue
		}
		m.entities[key] = cloneEntity(e)
	}
	return nil
}

func (m *Memory) parentExists(e core.Entity) bool {
	var parent core.EntityKey
	switch e.Kind {
	case core.KindMake:
		return true
	case core.KindModel:
		parent = core.EntityKey{Kind: core.KindMake, ID: e.Scope.MakeID}
	case core.KindVariant:
		parent = core.EntityKey{Kind: core.KindModel, ID: e.Scope.ModelID, Scope: core.Scope{MakeID: e.Scope.MakeID}}
	}
	_, ok := m.entities[parent]
	return ok
}

func (m *Memory) Get(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (*core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[core.EntityKey{Kind: kind, ID: id, Scope: scope}]
	if !ok {
		return nil, core.ErrNotFound
	}
	e = cloneEntity(e)
	return &e, nil
}

func (m *Memory) List(ctx context.Context, kind core.EntityKind, scope core.Scope) ([]core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]core.Entity, 0)
	for key, e := range m.entities {
		if key.Kind == kind && key.Scope == scope {
			out = append(out, cloneEntity(e))
		}
	}
	m.mu.RUnlock()

	sortByName(out)
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target := core.EntityKey{Kind: kind, ID: id, Scope: scope}
	if _, ok := m.entities[target]; !ok {
		return core.ErrNotFound
	}
	delete(m.entities, target)

	below := scope.ChildScope(kind, id)
	for key := range m.entities {
		if isBelow(key, kind, below) {
			delete(m.entities, key)
		}
	}
	return nil
}

// isBelow reports whether key lives under the entity of kind whose child
// scope is below.
func isBelow(key core.EntityKey, kind core.EntityKind, below core.Scope) bool {
	switch kind {
	case core.KindMake:
		return key.Kind != core.KindMake && key.Scope.MakeID == below.MakeID
	case core.KindModel:
		return key.Kind == core.KindVariant && key.Scope == below
	default:
		return false
	}
}

func (m *Memory) RecordImportRun(ctx context.Context, run core.ImportRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.ImportRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *Memory) PruneImportRuns(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	for _, r := range m.runs {
		if !r.StartedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	n := len(m.runs) - len(kept)
	m.runs = kept
	return n, nil
}

// Count returns the number of stored entities of kind across all scopes.
func (m *Memory) Count(kind core.EntityKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for key := range m.entities {
		if key.Kind == kind {
			n++
		}
	}
	return n
}

// WriteCount returns the number of Create and CreateBatch calls so far.
func (m *Memory) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func cloneEntity(e core.Entity) core.Entity {
	if e.Variant != nil {
		v := *e.Variant
		if v.EngineSizeInCC != nil {
			cc := *v.EngineSizeInCC
			v.EngineSizeInCC = &cc
		}
		e.Variant = &v
	}
	return e
}

// sortByName orders entities by name, then id, ignoring case.
func sortByName(entities []core.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		a, b := strings.ToLower(entities[i].Name), strings.ToLower(entities[j].Name)
		if a != b {
			return a < b
		}
		return entities[i].ID < entities[j].ID
	})
}
