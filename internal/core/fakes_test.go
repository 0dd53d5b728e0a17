package core

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

const taxonomyHeader = "BodyType,Make,GenModel,Model,Fuel,EngineSizeSimple,EngineSizeDesc\n"

// csvSource serves a fixed string as an import file.
type csvSource struct {
	id   string
	body string
}

func (s csvSource) RequestID() string { return s.id }

func (s csvSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func taxonomyFile(rows ...string) csvSource {
	return csvSource{id: "test-file", body: taxonomyHeader + strings.Join(rows, "\n") + "\n"}
}

// fakeStore is an in-memory Store and ImportHistory that records calls.
// Children are rejected unless their parent exists.
type fakeStore struct {
	mu         sync.Mutex
	entities   map[EntityKey]Entity
	runs       []ImportRun
	listCalls  []scopeKey
	writeSizes []int
}

func newFakeStore(seed ...Entity) *fakeStore {
	f := &fakeStore{entities: make(map[EntityKey]Entity)}
	for _, e := range seed {
		f.entities[e.Key()] = e
	}
	return f
}

func parentKey(e Entity) (EntityKey, bool) {
	switch e.Kind {
	case KindModel:
		return EntityKey{Kind: KindMake, ID: e.Scope.MakeID}, true
	case KindVariant:
		return EntityKey{Kind: KindModel, ID: e.Scope.ModelID, Scope: Scope{MakeID: e.Scope.MakeID}}, true
	default:
		return EntityKey{}, false
	}
}

func (f *fakeStore) ListIDs(_ context.Context, kind EntityKind, scope Scope) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, scopeKey{kind: kind, scope: scope})

	ids := make(map[string]struct{})
	for k := range f.entities {
		if k.Kind == kind && k.Scope == scope {
			ids[k.ID] = struct{}{}
		}
	}
	return ids, nil
}

func (f *fakeStore) Exists(_ context.Context, kind EntityKind, id string, scope Scope) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entities[EntityKey{Kind: kind, ID: id, Scope: scope}]
	return ok, nil
}

func (f *fakeStore) Create(ctx context.Context, e Entity) error {
	return f.CreateBatch(ctx, []Entity{e})
}

func (f *fakeStore) CreateBatch(_ context.Context, entities []Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeSizes = append(f.writeSizes, len(entities))

	for _, e := range entities {
		if pk, ok := parentKey(e); ok {
			if _, found := f.entities[pk]; !found {
				return ErrParentNotFound
			}
		}
		if _, dup := f.entities[e.Key()]; !dup {
			f.entities[e.Key()] = e
		}
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, kind EntityKind, id string, scope Scope) (*Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[EntityKey{Kind: kind, ID: id, Scope: scope}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (f *fakeStore) List(_ context.Context, kind EntityKind, scope Scope) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entity
	for k, e := range f.entities {
		if k.Kind == kind && k.Scope == scope {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, kind EntityKind, id string, scope Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := EntityKey{Kind: kind, ID: id, Scope: scope}
	if _, ok := f.entities[key]; !ok {
		return ErrNotFound
	}
	delete(f.entities, key)

	below := scope.ChildScope(kind, id)
	for k := range f.entities {
		switch kind {
		case KindMake:
			if k.Scope.MakeID == below.MakeID {
				delete(f.entities, k)
			}
		case KindModel:
			if k.Scope == below {
				delete(f.entities, k)
			}
		}
	}
	return nil
}

func (f *fakeStore) RecordImportRun(_ context.Context, run ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) ListImportRuns(_ context.Context, limit int) ([]ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ImportRun, 0, len(f.runs))
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.runs[i])
	}
	return out, nil
}

func (f *fakeStore) PruneImportRuns(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.runs[:0]
	for _, r := range f.runs {
		if !r.StartedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	n := len(f.runs) - len(kept)
	f.runs = kept
	return n, nil
}

func (f *fakeStore) count(kind EntityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.entities {
		if k.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writeSizes)
}

// mockRepo lets tests inject store failures.
type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListIDs(ctx context.Context, kind EntityKind, scope Scope) (map[string]struct{}, error) {
	args := m.Called(ctx, kind, scope)
	ids, _ := args.Get(0).(map[string]struct{})
	return ids, args.Error(1)
}

func (m *mockRepo) Exists(ctx context.Context, kind EntityKind, id string, scope Scope) (bool, error) {
	args := m.Called(ctx, kind, id, scope)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) Create(ctx context.Context, e Entity) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockRepo) CreateBatch(ctx context.Context, entities []Entity) error {
	return m.Called(ctx, entities).Error(0)
}
