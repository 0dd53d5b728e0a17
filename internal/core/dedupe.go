package core

import (
	"context"
	"fmt"
)

// scopeKey identifies the children of one kind under one parent chain.
type scopeKey struct {
	kind  EntityKind
	scope Scope
}

// Deduplicator remembers every entity key an import has seen or found in
// the store, so each entity is created at most once.
//
// Store contents are loaded lazily, one parent scope at a time: all makes
// when the job starts, then the models of a pre-existing make the first
// time a row references it, and likewise the variants of a pre-existing
// model. Scopes under a parent first created by this job are known to be
// empty and are never queried.
type Deduplicator struct {
	repo   Repository
	seen   map[EntityKey]struct{}
	loaded map[scopeKey]struct{}
}

// NewDeduplicator creates an empty deduplicator backed by repo.
func NewDeduplicator(repo Repository) *Deduplicator {
	return &Deduplicator{
		repo:   repo,
		seen:   make(map[EntityKey]struct{}),
		loaded: make(map[scopeKey]struct{}),
	}
}

// Load seeds the set with the stored ids of kind under scope. Each scope is
// queried at most once per job.
func (d *Deduplicator) Load(ctx context.Context, kind EntityKind, scope Scope) error {
	sk := scopeKey{kind: kind, scope: scope}
	if _, ok := d.loaded[sk]; ok {
		return nil
	}

	ids, err := d.repo.ListIDs(ctx, kind, scope)
	if err != nil {
		return fmt.Errorf("list existing %s ids: %w", kind, err)
	}
	for id := range ids {
		d.seen[EntityKey{Kind: kind, ID: id, Scope: scope}] = struct{}{}
	}
	d.loaded[sk] = struct{}{}
	return nil
}

// MarkIfNew records key and reports whether it was unknown. Keys loaded
// from the store or marked earlier in the job return false.
func (d *Deduplicator) MarkIfNew(key EntityKey) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}

	// A brand new parent has nothing stored beneath it.
	if child := key.Kind.Child(); child != "" {
		d.loaded[scopeKey{kind: child, scope: key.Scope.ChildScope(key.Kind, key.ID)}] = struct{}{}
	}
	return true
}

// Len returns the number of keys tracked.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
