package core

// import_job.go drives a taxonomy CSV import.
//
// Rows are handled strictly in file order:
//
//	read -> map (business skip) -> validate (invalid) -> dedupe -> persist
//
// Every row ends in exactly one of success, skipped or invalid. Only an
// unreadable file, a store failure or cancellation stops the run. A file
// that fails before anything was written yields a Failed report; once a
// batch has been written the failure is returned as ErrImportInterrupted.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/logging"
)

// ErrImportCancelled is returned when the run's context ends mid-file.
// The partial report is discarded.
var ErrImportCancelled = errors.New("import cancelled")

// ErrImportInterrupted is returned when the file stream fails after at
// least one batch was written. Those writes stay in the store.
var ErrImportInterrupted = errors.New("import interrupted")

// PropertyFile is the property fatal input errors are attributed to.
const PropertyFile = "File"

// DefaultBatchSize is the number of new entities buffered per store write.
const DefaultBatchSize = 100

// ProgressInterval is how many rows pass between progress callbacks.
const ProgressInterval = 100

// ImportResponse is the envelope returned by an import run.
type ImportResponse = CommandResponse[*ImportJobResult]

// ImportProgress is reported periodically while a run reads its file.
type ImportProgress struct {
	RowsRead  int
	BytesRead int64
}

// hierarchyLevel builds one level of the taxonomy from a mapped row.
// Levels are processed in slice order so parents always precede children.
type hierarchyLevel struct {
	kind  EntityKind
	build func(row TaxonomyCsvRow) Entity
}

var hierarchyLevels = []hierarchyLevel{
	{
		kind: KindMake,
		build: func(row TaxonomyCsvRow) Entity {
			return Entity{Kind: KindMake, ID: row.MakeID, Scope: RootScope, Name: row.MakeName}
		},
	},
	{
		kind: KindModel,
		build: func(row TaxonomyCsvRow) Entity {
			return Entity{Kind: KindModel, ID: row.ModelID, Scope: Scope{MakeID: row.MakeID}, Name: row.ModelName}
		},
	},
	{
		kind: KindVariant,
		build: func(row TaxonomyCsvRow) Entity {
			return Entity{
				Kind:  KindVariant,
				ID:    row.VariantID,
				Scope: Scope{MakeID: row.MakeID, ModelID: row.ModelID},
				Name:  row.VariantName,
				Variant: &VariantData{
					FuelCategory:   row.FuelCategory,
					EngineSizeInCC: row.EngineSizeInCC,
				},
			}
		},
	},
}

// ImportJob runs taxonomy imports against a repository. It holds only
// configuration; every Execute call owns its own dedupe set, aggregator,
// mapper and validator, so one ImportJob may serve many runs.
type ImportJob struct {
	repo       Repository
	clock      Clock
	policy     Policy
	batchSize  int
	onProgress func(ImportProgress)
}

// ImportOption configures an ImportJob.
type ImportOption func(*ImportJob)

// WithBatchSize sets how many new entities are written per store call.
func WithBatchSize(n int) ImportOption {
	return func(j *ImportJob) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// WithProgress registers fn to be called every ProgressInterval rows.
func WithProgress(fn func(ImportProgress)) ImportOption {
	return func(j *ImportJob) {
		j.onProgress = fn
	}
}

// NewImportJob creates a job writing through repo.
func NewImportJob(repo Repository, clock Clock, policy Policy, opts ...ImportOption) *ImportJob {
	j := &ImportJob{
		repo:      repo,
		clock:     clock,
		policy:    policy,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Execute imports file.
//
// A file that cannot be read as CSV yields an invalid response with a
// single error on PropertyFile and a Failed result; nothing is written. A
// store failure or cancellation is returned as an error. Otherwise the
// response is valid and holds the Finished report.
func (j *ImportJob) Execute(ctx context.Context, file FileSource, mode ImportMode) (ImportResponse, error) {
	logger := logging.WithFields(ctx, "source_id", file.RequestID(), "mode", mode.String())
	start := time.Now()

	src, err := file.Open(ctx)
	if err != nil {
		logger.Warn("import source unavailable", "error", err)
		return fileFailure("The file could not be read: " + err.Error() + "."), nil
	}
	defer src.Close()

	reader, err := NewCSVReader(src, RequiredColumns...)
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			logger.Warn("import file rejected", "reason", malformed.Reason)
			return fileFailure(malformed.Message()), nil
		}
		return ImportResponse{}, err
	}

	run := &importRun{
		job:       j,
		mode:      mode,
		logger:    logger,
		reader:    reader,
		dedupe:    NewDeduplicator(j.repo),
		agg:       NewResultAggregator(),
		mapper:    NewRowMapper(j.policy),
		validator: NewRowValidator(j.policy),
		created:   make(map[EntityKind]int, len(hierarchyLevels)),
	}

	if err := run.dedupe.Load(ctx, KindMake, RootScope); err != nil {
		return ImportResponse{}, err
	}

	logger.Info("import started", "columns", len(reader.Header()))

	resp, err := run.process(ctx)
	if err != nil {
		logger.Error("import failed",
			"rows", run.agg.Processed(),
			"error", err,
		)
		return ImportResponse{}, err
	}

	if resp.Result != nil {
		logger.Info("import finished",
			"status", resp.Result.Status,
			"success", resp.Result.NumSuccess,
			"skipped", resp.Result.NumSkipped,
			"invalid", resp.Result.NumInvalid,
			"makes_created", run.created[KindMake],
			"models_created", run.created[KindModel],
			"variants_created", run.created[KindVariant],
			"bytes", reader.BytesRead(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return resp, nil
}

// importRun is the mutable state of one Execute call.
type importRun struct {
	job       *ImportJob
	mode      ImportMode
	logger    *slog.Logger
	reader    *CSVReader
	dedupe    *Deduplicator
	agg       *ResultAggregator
	mapper    *RowMapper
	validator *RowValidator
	pending   []Entity
	created   map[EntityKind]int
}

func (r *importRun) process(ctx context.Context) (ImportResponse, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ImportResponse{}, fmt.Errorf("%w after row %d: %w", ErrImportCancelled, r.agg.Processed(), err)
		}

		rec, err := r.reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var malformed *MalformedInputError
			if errors.As(err, &malformed) {
				if written := r.written(); written > 0 {
					return ImportResponse{}, fmt.Errorf("%w after row %d with %d entities written: %w",
						ErrImportInterrupted, r.agg.Processed(), written, err)
				}
				r.logger.Warn("import stream failed", "row", r.agg.Processed(), "error", err)
				return fileFailure(malformed.Message()), nil
			}
			return ImportResponse{}, err
		}

		if err := r.handle(ctx, rec); err != nil {
			return ImportResponse{}, err
		}

		if r.job.onProgress != nil && rec.RowNumber%ProgressInterval == 0 {
			r.job.onProgress(ImportProgress{RowsRead: rec.RowNumber, BytesRead: r.reader.BytesRead()})
		}
	}

	if err := r.flush(ctx); err != nil {
		return ImportResponse{}, err
	}

	result := r.agg.Finalize()
	return Success(&result), nil
}

// handle classifies one record. Only store failures are returned.
func (r *importRun) handle(ctx context.Context, rec Record) error {
	if rec.Problem != "" {
		r.agg.RecordInvalid(rec.RowNumber, []string{rec.Problem})
		return nil
	}

	row, skip := r.mapper.Map(rec)
	if skip != "" {
		r.agg.RecordSkip(skip, rec.RowNumber)
		return nil
	}

	if errs := r.validator.Validate(row); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Message
		}
		r.agg.RecordInvalid(row.RowNumber, msgs)
		return nil
	}

	for _, level := range hierarchyLevels {
		e := level.build(row)
		if err := r.dedupe.Load(ctx, level.kind, e.Scope); err != nil {
			return err
		}
		if !r.dedupe.MarkIfNew(e.Key()) {
			continue
		}
		if r.mode == ImportModeValidate {
			continue
		}
		e.CreateDate = r.job.clock.Now().UTC()
		if err := r.enqueue(ctx, e); err != nil {
			return err
		}
	}

	r.agg.RecordSuccess()
	return nil
}

func (r *importRun) enqueue(ctx context.Context, e Entity) error {
	r.pending = append(r.pending, e)
	if len(r.pending) >= r.job.batchSize {
		return r.flush(ctx)
	}
	return nil
}

// flush writes pending entities in discovery order.
func (r *importRun) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	var err error
	if len(r.pending) == 1 {
		err = r.job.repo.Create(ctx, r.pending[0])
	} else {
		err = r.job.repo.CreateBatch(ctx, r.pending)
	}
	if err != nil {
		return fmt.Errorf("persist %d entities: %w", len(r.pending), err)
	}

	for _, e := range r.pending {
		r.created[e.Kind]++
		CounterEntitiesCreated.WithLabelValues(string(e.Kind)).Inc()
	}
	r.pending = make([]Entity, 0, r.job.batchSize)
	return nil
}

func (r *importRun) written() int {
	n := 0
	for _, c := range r.created {
		n += c
	}
	return n
}

func fileFailure(message string) ImportResponse {
	result := FailedResult()
	return CommandResponse[*ImportJobResult]{
		IsValid:          false,
		Result:           &result,
		ValidationErrors: []ValidationError{{Property: PropertyFile, Message: message}},
	}
}
