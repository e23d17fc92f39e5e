// Package scheduler implements the refresh scheduler for external data
// sources. Each registered collector carries its own update frequency; the
// scheduler ticks periodically, selects the sources that are due, runs their
// collectors concurrently with a bounded worker pool, and feeds the resulting
// observations into the rating store.
//
// Key behaviors:
//   - Never-run sources (next_update IS NULL) are due immediately, so first
//     startup triggers a full initial collection.
//   - A successful run advances last_updated/next_update; a failed run leaves
//     the record untouched, so the source is retried on the next tick.
//   - Source failures are isolated: one broken provider never blocks the rest
//     of the tick.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ziprank/internal/types"
)

// Collector fetches ratings from one external data provider. Implementations
// live in internal/collectors.
type Collector interface {
	// Name returns the source name used as the data_sources key.
	Name() string
	// Spec returns the scheduling record defaults for this source
	// (update frequency, provider URL, notes).
	Spec() types.DataSource
	// Collect fetches from the provider and returns the observations to
	// store. Implementations must honor ctx cancellation; the scheduler
	// applies a per-source timeout.
	Collect(ctx context.Context) ([]types.Observation, error)
}

// SourceRepo abstracts the data_sources operations the scheduler needs.
// Implemented by db.SourceRepository; an interface here allows clean testing
// without a database.
type SourceRepo interface {
	Register(ctx context.Context, src *types.DataSource) error
	List(ctx context.Context) ([]*types.DataSource, error)
	ListDue(ctx context.Context, now time.Time) ([]*types.DataSource, error)
	MarkSuccess(ctx context.Context, name string, ranAt, next time.Time) error
	DeleteAll(ctx context.Context) error
}

// RatingSink receives collected observations. Satisfied by ratings.Store.
type RatingSink interface {
	Upsert(ctx context.Context, obs *types.Observation) error
}

// MetricsRecorder receives per-run outcome metrics. Satisfied by the metrics
// package; a no-op implementation is used when metrics are disabled.
type MetricsRecorder interface {
	RecordSourceRun(ctx context.Context, source string, success bool, duration time.Duration)
}

// SourceStatus is a scheduling record annotated with its derived lifecycle
// state, including the transient "running" state only the scheduler knows.
type SourceStatus struct {
	types.DataSource
	State types.SourceState `json:"state"`
}

// Scheduler drives the collection cadence for all registered sources.
type Scheduler struct {
	sources SourceRepo
	ratings RatingSink
	metrics MetricsRecorder

	collectors map[string]Collector
	order      []string // registration order, for deterministic registration

	tickInterval  time.Duration
	maxConcurrent int
	sourceTimeout time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// Config holds the configuration for creating a Scheduler.
type Config struct {
	Sources SourceRepo
	Ratings RatingSink
	Metrics MetricsRecorder

	// TickInterval is the cadence of the Run loop.
	TickInterval time.Duration
	// MaxConcurrentSources bounds the number of collectors running at once.
	MaxConcurrentSources int
	// SourceTimeout bounds a single collector run, fetch and store included.
	SourceTimeout time.Duration

	Logger *slog.Logger
}

// New creates a Scheduler with the given configuration. Collectors are added
// afterwards via Register.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrentSources
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		sources:       cfg.Sources,
		ratings:       cfg.Ratings,
		metrics:       cfg.Metrics,
		collectors:    make(map[string]Collector),
		tickInterval:  cfg.TickInterval,
		maxConcurrent: maxConcurrent,
		sourceTimeout: cfg.SourceTimeout,
		logger:        logger,
		running:       make(map[string]struct{}),
	}
}

// Register adds a collector to the registry. Later registrations with the
// same name replace earlier ones.
func (s *Scheduler) Register(c Collector) {
	name := c.Name()
	if _, exists := s.collectors[name]; !exists {
		s.order = append(s.order, name)
	}
	s.collectors[name] = c
}

// Run ticks the scheduler on its configured interval until the context is
// cancelled. An immediate tick happens on start so a fresh deployment does
// not wait a full interval for its first collection.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Tick(ctx, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "initial scheduler tick failed", "error", err)
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx, time.Now().UTC()); err != nil {
				s.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling cycle at the given time and returns the names of
// the sources that ran successfully.
//
// The cycle first ensures every registered collector has a scheduling record
// (INSERT ... ON CONFLICT DO NOTHING, so existing cadences are preserved),
// then selects the due sources and runs their collectors concurrently under
// the worker limit with a per-source timeout. A source that succeeds has its
// record advanced to last_updated=now, next_update=now+frequency. A source
// that fails is logged and left untouched for retry on the next tick; it
// never aborts the cycle.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]string, error) {
	tickID := uuid.NewString()

	for _, name := range s.order {
		spec := s.collectors[name].Spec()
		spec.Name = name
		if err := s.sources.Register(ctx, &spec); err != nil {
			return nil, err
		}
	}

	due, err := s.sources.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		s.logger.DebugContext(ctx, "no sources due", "tick_id", tickID)
		return nil, nil
	}

	s.logger.InfoContext(ctx, "starting collection tick",
		"tick_id", tickID,
		"due_count", len(due),
	)

	var mu sync.Mutex
	var ran []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for _, src := range due {
		collector, ok := s.collectors[src.Name]
		if !ok {
			// A row with no collector can appear after a deployment drops a
			// source. Leave it; an operator can delete the row.
			s.logger.WarnContext(ctx, "due source has no registered collector",
				"tick_id", tickID,
				"source", src.Name,
			)
			continue
		}

		src := src
		g.Go(func() error {
			if s.runSource(gctx, tickID, src, collector, now) {
				mu.Lock()
				ran = append(ran, src.Name)
				mu.Unlock()
			}
			// Failures are isolated per source; never fail the group.
			return nil
		})
	}

	// Goroutines only return nil, so Wait is purely a join.
	_ = g.Wait()

	sort.Strings(ran)
	s.logger.InfoContext(ctx, "collection tick complete",
		"tick_id", tickID,
		"ran_count", len(ran),
		"failed_count", len(due)-len(ran),
	)
	return ran, nil
}

// runSource executes one collector run end to end and reports success.
func (s *Scheduler) runSource(ctx context.Context, tickID string, src *types.DataSource, collector Collector, now time.Time) bool {
	runCtx := ctx
	if s.sourceTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.sourceTimeout)
		defer cancel()
	}

	s.setRunning(src.Name, true)
	defer s.setRunning(src.Name, false)

	started := time.Now()
	observations, err := collector.Collect(runCtx)
	if err != nil {
		s.logger.ErrorContext(ctx, "source collection failed",
			"tick_id", tickID,
			"source", src.Name,
			"error", err,
		)
		s.recordRun(ctx, src.Name, false, time.Since(started))
		return false
	}

	stored := 0
	for i := range observations {
		if err := s.ratings.Upsert(runCtx, &observations[i]); err != nil {
			// Bad individual observations (validation failures) are dropped,
			// not fatal to the run.
			s.logger.WarnContext(ctx, "dropping observation",
				"tick_id", tickID,
				"source", src.Name,
				"zip", observations[i].Zip,
				"rating_kind", string(observations[i].Kind),
				"error", err,
			)
			continue
		}
		stored++
	}

	next := now.Add(src.UpdateFrequency)
	if err := s.sources.MarkSuccess(ctx, src.Name, now, next); err != nil {
		s.logger.ErrorContext(ctx, "failed to record source run",
			"tick_id", tickID,
			"source", src.Name,
			"error", err,
		)
		s.recordRun(ctx, src.Name, false, time.Since(started))
		return false
	}

	s.logger.InfoContext(ctx, "source collected",
		"tick_id", tickID,
		"source", src.Name,
		"observations", len(observations),
		"stored", stored,
		"next_update", next.Format(time.RFC3339),
	)
	s.recordRun(ctx, src.Name, true, time.Since(started))
	return true
}

// ForceAll deletes every scheduling record. With the records gone, every
// registered source is "never run" and therefore due; the next tick
// re-registers the rows from the collector registry and runs them all.
func (s *Scheduler) ForceAll(ctx context.Context) error {
	s.logger.InfoContext(ctx, "forcing full refresh of all sources")
	return s.sources.DeleteAll(ctx)
}

// DueSources is a pure query: the scheduling records eligible to run at the
// given time. It triggers nothing.
func (s *Scheduler) DueSources(ctx context.Context, now time.Time) ([]*types.DataSource, error) {
	return s.sources.ListDue(ctx, now)
}

// Status reports every scheduling record with its derived lifecycle state.
// Sources with an in-flight collection report "running".
func (s *Scheduler) Status(ctx context.Context, now time.Time) ([]SourceStatus, error) {
	list, err := s.sources.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]SourceStatus, 0, len(list))
	for _, src := range list {
		state := src.State(now)
		if s.isRunning(src.Name) {
			state = types.SourceStateRunning
		}
		statuses = append(statuses, SourceStatus{DataSource: *src, State: state})
	}
	return statuses, nil
}

func (s *Scheduler) setRunning(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.running[name] = struct{}{}
	} else {
		delete(s.running, name)
	}
}

func (s *Scheduler) isRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}

func (s *Scheduler) recordRun(ctx context.Context, source string, success bool, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSourceRun(ctx, source, success, duration)
}
