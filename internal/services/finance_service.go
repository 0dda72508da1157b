package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blackout/internal/cache"
	"blackout/internal/core"
	"blackout/internal/events"
	"blackout/internal/ledger"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/storage"

	"golang.org/x/sync/singleflight"
)

// Status is the boundary-neutral result of an intent.
type Status int

const (
	StatusOK Status = iota
	StatusCreated
	StatusInvalid
	StatusNotFound
	StatusInsufficientBalance
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCreated:
		return "created"
	case StatusInvalid:
		return "invalid"
	case StatusNotFound:
		return "not_found"
	case StatusInsufficientBalance:
		return "insufficient_balance"
	default:
		return "failure"
	}
}

// StatusFor classifies an engine error.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, core.ErrInsufficientBalance):
		return StatusInsufficientBalance
	case errors.Is(err, core.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return StatusInvalid
	default:
		return StatusFailure
	}
}

type (
	CreateIntent struct {
		Owner  core.OwnerID
		Kind   core.Kind
		Fields core.Fields
	}

	UpdateIntent struct {
		Owner  core.OwnerID
		Kind   core.Kind
		ID     int64
		Fields core.Fields
	}

	DeleteIntent struct {
		Owner core.OwnerID
		Kind  core.Kind
		ID    int64
	}

	// Outcome carries whichever of Record, Records and Totals the intent
	// produced. Err is set for every status other than OK and Created.
	Outcome struct {
		Status  Status
		Record  core.Record
		Records []core.Record
		Totals  core.Totals
		Err     error
	}
)

// Options configures a FinanceService. Zero values get defaults.
type Options struct {
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Logger        *log.Logger
	CacheSize     int
	CacheTTL      time.Duration
	EngineOptions []ledger.Option
}

// FinanceService is the mutation gateway in front of the ledger engine. After
// a commit it drops the owner's cached totals and publishes a ledger event
// before the mutating call returns.
type FinanceService struct {
	engine    *ledger.Engine
	store     storage.Store
	publisher events.Publisher
	totals    *cache.LRUCache[core.OwnerID, core.Totals]
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *log.Logger
	slog      *log.StructuredLogger
}

const publishTimeout = 5 * time.Second

func NewFinanceService(store storage.Store, opts Options) *FinanceService {
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	s := &FinanceService{
		store:     store,
		publisher: opts.Publisher,
		totals:    cache.NewLRUCache[core.OwnerID, core.Totals](opts.CacheSize, opts.CacheTTL),
		metrics:   opts.Metrics,
		logger:    opts.Logger.WithComponent(log.ComponentLedger),
		slog:      log.NewStructuredLogger(opts.Logger),
	}
	engineOpts := append([]ledger.Option{ledger.WithCommitHook(s.onCommit)}, opts.EngineOptions...)
	s.engine = ledger.NewEngine(store, engineOpts...)
	return s
}

// TotalsCache exposes the totals cache for periodic cleanup.
func (s *FinanceService) TotalsCache() cache.Cleaner {
	return s.totals
}

func (s *FinanceService) Create(ctx context.Context, in CreateIntent) Outcome {
	start := time.Now()
	rec, err := s.engine.Create(ctx, in.Owner, in.Kind, in.Fields)
	out := Outcome{Status: StatusFor(err), Record: rec, Err: err}
	if err == nil {
		out.Status = StatusCreated
	}
	s.observe(ctx, ledger.OpCreate, in.Owner, in.Kind, rec.ID, in.Fields.Value, out, time.Since(start))
	return out
}

func (s *FinanceService) Update(ctx context.Context, in UpdateIntent) Outcome {
	start := time.Now()
	rec, err := s.engine.Update(ctx, in.Owner, in.Kind, in.ID, in.Fields)
	out := Outcome{Status: StatusFor(err), Record: rec, Err: err}
	s.observe(ctx, ledger.OpUpdate, in.Owner, in.Kind, in.ID, in.Fields.Value, out, time.Since(start))
	return out
}

func (s *FinanceService) Delete(ctx context.Context, in DeleteIntent) Outcome {
	start := time.Now()
	rec, err := s.engine.Delete(ctx, in.Owner, in.Kind, in.ID)
	out := Outcome{Status: StatusFor(err), Record: rec, Err: err}
	s.observe(ctx, ledger.OpDelete, in.Owner, in.Kind, in.ID, rec.Value, out, time.Since(start))
	return out
}

func (s *FinanceService) List(ctx context.Context, owner core.OwnerID, kind core.Kind) Outcome {
	records, err := s.engine.List(ctx, owner, kind)
	if err != nil {
		s.slog.LogError(ctx, "Failed to list records", err, log.ComponentLedger, log.OpList,
			log.NewFields().WithRecord(int64(owner), kind.String(), 0, 0))
		return Outcome{Status: StatusFor(err), Err: err}
	}
	if records == nil {
		records = []core.Record{}
	}
	return Outcome{Status: StatusOK, Records: records}
}

// Totals serves the dashboard totals from cache when possible. Concurrent
// misses for the same owner share one store read.
func (s *FinanceService) Totals(ctx context.Context, owner core.OwnerID) Outcome {
	if t, ok := s.totals.Get(owner); ok {
		s.cacheLookup(true)
		return Outcome{Status: StatusOK, Totals: t}
	}
	s.cacheLookup(false)

	// Reads started before an invalidation must not be shared with callers
	// arriving after it, so the generation is part of the flight key.
	gen := s.totals.Generation(owner)
	key := fmt.Sprintf("%d/%d", owner, gen)
	// The shared read outlives any one caller; each caller stops waiting
	// when its own context ends.
	flight := s.group.DoChan(key, func() (any, error) {
		t, err := s.engine.Totals(context.WithoutCancel(ctx), owner)
		if err != nil {
			return core.Totals{}, err
		}
		s.totals.SetIfGeneration(owner, gen, t)
		return t, nil
	})
	select {
	case <-ctx.Done():
		return Outcome{Status: StatusFailure, Err: ctx.Err()}
	case res := <-flight:
		if res.Err != nil {
			s.slog.LogError(ctx, "Failed to compute totals", res.Err, log.ComponentLedger, log.OpTotals,
				log.NewFields().WithRecord(int64(owner), "", 0, 0))
			return Outcome{Status: StatusFor(res.Err), Err: res.Err}
		}
		return Outcome{Status: StatusOK, Totals: res.Val.(core.Totals)}
	}
}

// Ping checks the store.
func (s *FinanceService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the publisher and the store.
func (s *FinanceService) Close() error {
	var errs []error
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}

func (s *FinanceService) onCommit(ctx context.Context, c ledger.Change) {
	s.totals.Invalidate(c.Record.Owner)

	e := events.New(events.TypeOf(c.Record.Kind, pastTense(c.Op)), c.Record, c.Totals.Balance)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	result := "success"
	if err := s.publisher.Publish(pctx, e); err != nil {
		// The mutation is committed; the event is lost for this transport.
		result = "failure"
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldOperation, log.OpPublish,
			log.FieldEventID, e.EventID,
			log.FieldEventType, string(e.Type),
			log.FieldOwnerID, e.OwnerID,
			log.FieldError, err)
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(result).Inc()
	}
}

func (s *FinanceService) observe(ctx context.Context, op ledger.Op, owner core.OwnerID, kind core.Kind, id int64, value core.Money, out Outcome, elapsed time.Duration) {
	outcome := outcomeLabel(out.Status)
	if s.metrics != nil {
		s.metrics.ObserveMutation(kind.String(), string(op), outcome, elapsed)
	}
	if out.Record.ID != 0 {
		id = out.Record.ID
	}
	s.slog.LogMutation(ctx, string(op), int64(owner), kind.String(), id, value.Cents, outcome, out.Err)
}

func (s *FinanceService) cacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.CacheLookup(hit)
	}
}

func outcomeLabel(st Status) string {
	switch st {
	case StatusOK, StatusCreated:
		return metrics.OutcomeAccepted
	case StatusInvalid:
		return metrics.OutcomeInvalid
	case StatusNotFound:
		return metrics.OutcomeNotFound
	case StatusInsufficientBalance:
		return metrics.OutcomeInsufficient
	default:
		return metrics.OutcomeFailure
	}
}

func pastTense(op ledger.Op) string {
	switch op {
	case ledger.OpCreate:
		return "created"
	case ledger.OpUpdate:
		return "updated"
	default:
		return "deleted"
	}
}
