package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrImportNotFound is returned when cancelling an unknown import.
var ErrImportNotFound = errors.New("import not found")

// ServiceConfig holds the tunables of a Service. Zero values fall back to
// defaults.
type ServiceConfig struct {
	Policy        Policy
	BatchSize     int
	ImportTimeout time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	Clock         Clock
}

// Service is the entry point for taxonomy commands and imports. It is safe
// for concurrent use.
type Service struct {
	store   Store
	history ImportHistory
	clock   Clock
	policy  Policy
	limiter *ImportLimiter

	batchSize     int
	importTimeout time.Duration

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	id        string
	requestID string
	mode      ImportMode
	startedAt time.Time
	cancel    context.CancelFunc
	status    atomic.Value // JobStatus
	rowsRead  atomic.Int64
}

// NewService creates a Service over store. When store also implements
// ImportHistory, completed imports are recorded in it.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = 10 * time.Minute
	}

	s := &Service{
		store:         store,
		clock:         cfg.Clock,
		policy:        cfg.Policy,
		limiter:       NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		batchSize:     cfg.BatchSize,
		importTimeout: cfg.ImportTimeout,
		imports:       make(map[string]*activeImport),
	}
	if h, ok := store.(ImportHistory); ok {
		s.history = h
	}
	return s
}

// Policy returns the taxonomy rules in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// RunImport executes an import of file and waits for it to finish.
//
// The run holds an import slot for its duration, is bounded by the import
// timeout, and can be cancelled through CancelImport or by cancelling ctx.
func (s *Service) RunImport(ctx context.Context, file FileSource, mode ImportMode) (ImportResponse, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return ImportResponse{}, err
	}
	defer s.limiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	ai := &activeImport{
		id:        uuid.New().String(),
		requestID: file.RequestID(),
		mode:      mode,
		startedAt: s.clock.Now(),
		cancel:    cancel,
	}
	ai.status.Store(StatusInitializing)

	s.mu.Lock()
	s.imports[ai.id] = ai
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.imports, ai.id)
		s.mu.Unlock()
	}()

	job := NewImportJob(s.store, s.clock, s.policy,
		WithBatchSize(s.batchSize),
		WithProgress(func(p ImportProgress) {
			ai.status.Store(StatusRunning)
			ai.rowsRead.Store(int64(p.RowsRead))
		}),
	)

	resp, err := job.Execute(runCtx, file, mode)

	status := StatusFinished
	if err != nil || !resp.IsValid {
		status = StatusFailed
	}
	ai.status.Store(status)
	observeImport(mode, status, resp.Result, time.Since(ai.startedAt).Seconds())
	s.recordRun(ctx, ai, status, resp.Result, err)

	return resp, err
}

func (s *Service) recordRun(ctx context.Context, ai *activeImport, status JobStatus, result *ImportJobResult, runErr error) {
	if s.history == nil {
		return
	}

	run := ImportRun{
		ID:         ai.id,
		RequestID:  ai.requestID,
		Mode:       ai.mode.String(),
		Status:     status,
		StartedAt:  ai.startedAt,
		FinishedAt: s.clock.Now(),
		Result:     result,
	}
	if runErr != nil {
		run.Error = runErr.Error()
		run.Result = nil
	}

	// The run's own context may be the reason it ended.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.RecordImportRun(recordCtx, run); err != nil {
		slog.Warn("failed to record import run", "import_id", ai.id, "error", err)
	}
}

// ImportStatus describes an import that is still running.
type ImportStatus struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	Mode      string    `json:"mode"`
	Status    JobStatus `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	RowsRead  int64     `json:"rowsRead"`
}

// ActiveImports lists running imports, oldest first.
func (s *Service) ActiveImports() []ImportStatus {
	s.mu.RLock()
	out := make([]ImportStatus, 0, len(s.imports))
	for _, ai := range s.imports {
		out = append(out, ImportStatus{
			ID:        ai.id,
			RequestID: ai.requestID,
			Mode:      ai.mode.String(),
			Status:    ai.status.Load().(JobStatus),
			StartedAt: ai.startedAt,
			RowsRead:  ai.rowsRead.Load(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CancelImport stops a running import after its current row.
func (s *Service) CancelImport(id string) error {
	s.mu.RLock()
	ai, ok := s.imports[id]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	ai.cancel()
	return nil
}

// ImportHistory returns up to limit recorded runs, newest first. Stores
// without history support return an empty list.
func (s *Service) ImportHistory(ctx context.Context, limit int) ([]ImportRun, error) {
	if s.history == nil {
		return []ImportRun{}, nil
	}
	runs, err := s.history.ListImportRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return runs, nil
}

// ImportLimiterStatus reports import slot usage.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
