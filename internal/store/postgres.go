package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// Schema is the DDL the postgres store expects.
//
//go:embed schema.sql
var Schema string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores the taxonomy in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ core.Store         = (*Postgres)(nil)
	_ core.ImportHistory = (*Postgres)(nil)
)

// NewPostgres wraps an open pool. The caller owns the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema applies Schema. Every statement is idempotent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

var entityColumns = []string{"kind", "make_id", "model_id", "id", "name", "fuel_category", "engine_size_cc", "create_date"}

const selectEntity = `SELECT kind, make_id, model_id, id, name, fuel_category, engine_size_cc, create_date FROM vehicle_taxonomy`

func (p *Postgres) ListIDs(ctx context.Context, kind core.EntityKind, scope core.Scope) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id FROM vehicle_taxonomy WHERE kind = $1 AND make_id = $2 AND model_id = $3`,
		string(kind), scope.MakeID, scope.ModelID)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s ids: %w", kind, err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (p *Postgres) Exists(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicle_taxonomy WHERE kind = $1 AND make_id = $2 AND model_id = $3 AND id = $4)`,
		string(kind), scope.MakeID, scope.ModelID, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %q: %w", kind, id, err)
	}
	return exists, nil
}

func (p *Postgres) Create(ctx context.Context, e core.Entity) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO vehicle_taxonomy (kind, make_id, model_id, id, name, fuel_category, engine_size_cc, create_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT DO NOTHING`,
		entityValues(e)...)
	if err != nil {
		return fmt.Errorf("insert %s %q: %w", e.Kind, e.ID, err)
	}
	return nil
}

// CreateBatch copies entities into a transaction-scoped staging table and
// moves them across in one statement. Rows that already exist are left
// untouched.
func (p *Postgres) CreateBatch(ctx context.Context, entities []core.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`CREATE TEMP TABLE taxonomy_staging (LIKE vehicle_taxonomy INCLUDING DEFAULTS) ON COMMIT DROP`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"taxonomy_staging"}, entityColumns,
		pgx.CopyFromSlice(len(entities), func(i int) ([]any, error) {
			return entityValues(entities[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("copy %d entities: %w", len(entities), err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO vehicle_taxonomy (kind, make_id, model_id, id, name, fuel_category, engine_size_cc, create_date)
		 SELECT kind, make_id, model_id, id, name, fuel_category, engine_size_cc, create_date FROM taxonomy_staging
		 ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("insert from staging: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Get(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) (*core.Entity, error) {
	rows, err := p.pool.Query(ctx,
		selectEntity+` WHERE kind = $1 AND make_id = $2 AND model_id = $3 AND id = $4`,
		string(kind), scope.MakeID, scope.ModelID, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", kind, id, err)
	}

	e, err := pgx.CollectOneRow(rows, scanEntity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s %q: %w", kind, id, err)
	}
	return &e, nil
}

func (p *Postgres) List(ctx context.Context, kind core.EntityKind, scope core.Scope) ([]core.Entity, error) {
	rows, err := p.pool.Query(ctx,
		selectEntity+` WHERE kind = $1 AND make_id = $2 AND model_id = $3 ORDER BY lower(name), id`,
		string(kind), scope.MakeID, scope.ModelID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	entities, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	return entities, nil
}

func (p *Postgres) Delete(ctx context.Context, kind core.EntityKind, id string, scope core.Scope) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`DELETE FROM vehicle_taxonomy WHERE kind = $1 AND make_id = $2 AND model_id = $3 AND id = $4`,
		string(kind), scope.MakeID, scope.ModelID, id)
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}

	if err := deleteDescendants(ctx, tx, kind, id, scope); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func deleteDescendants(ctx context.Context, db DBTX, kind core.EntityKind, id string, scope core.Scope) error {
	var err error
	switch kind {
	case core.KindMake:
		_, err = db.Exec(ctx, `DELETE FROM vehicle_taxonomy WHERE kind <> 'make' AND make_id = $1`, id)
	case core.KindModel:
		_, err = db.Exec(ctx,
			`DELETE FROM vehicle_taxonomy WHERE kind = 'variant' AND make_id = $1 AND model_id = $2`,
			scope.MakeID, id)
	}
	if err != nil {
		return fmt.Errorf("delete children of %s %q: %w", kind, id, err)
	}
	return nil
}

func (p *Postgres) RecordImportRun(ctx context.Context, run core.ImportRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("import run id %q: %w", run.ID, err)
	}

	var result []byte
	if run.Result != nil {
		if result, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("encode import result: %w", err)
		}
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO import_runs (id, request_id, mode, status, started_at, finished_at, result, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, run.RequestID, run.Mode, string(run.Status), run.StartedAt, run.FinishedAt, result, run.Error)
	if err != nil {
		return fmt.Errorf("insert import run %s: %w", run.ID, err)
	}
	return nil
}

func (p *Postgres) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id::text, request_id, mode, status, started_at, finished_at, result, error
		 FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRun, error) {
		var (
			run    core.ImportRun
			status string
			result []byte
		)
		if err := row.Scan(&run.ID, &run.RequestID, &run.Mode, &status, &run.StartedAt, &run.FinishedAt, &result, &run.Error); err != nil {
			return run, err
		}
		run.Status = core.JobStatus(status)
		if len(result) > 0 {
			run.Result = &core.ImportJobResult{}
			if err := json.Unmarshal(result, run.Result); err != nil {
				return run, fmt.Errorf("decode import result %s: %w", run.ID, err)
			}
		}
		return run, nil
	})
}

func (p *Postgres) PruneImportRuns(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM import_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune import runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func entityValues(e core.Entity) []any {
	var (
		fuel   *string
		engine *int
	)
	if e.Variant != nil {
		f := string(e.Variant.FuelCategory)
		fuel = &f
		engine = e.Variant.EngineSizeInCC
	}
	return []any{string(e.Kind), e.Scope.MakeID, e.Scope.ModelID, e.ID, e.Name, fuel, engine, e.CreateDate}
}

func scanEntity(row pgx.CollectableRow) (core.Entity, error) {
	var (
		e      core.Entity
		kind   string
		fuel   *string
		engine *int
	)
	err := row.Scan(&kind, &e.Scope.MakeID, &e.Scope.ModelID, &e.ID, &e.Name, &fuel, &engine, &e.CreateDate)
	if err != nil {
		return e, err
	}

	e.Kind = core.EntityKind(kind)
	if e.Kind == core.KindVariant {
		e.Variant = &core.VariantData{EngineSizeInCC: engine}
		if fuel != nil {
			e.Variant.FuelCategory = core.ParseFuelCategory(*fuel)
		}
	}
	return e, nil
}
