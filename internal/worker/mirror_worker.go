// Package worker runs the background side of the ledger: it consumes
// committed-change events and appends them to the spreadsheet mirror.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"blackout/internal/events"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/sheets"
)

// MirrorWorker appends one sheet row per ledger event. A failed append is
// returned to the transport so the event is delivered again.
type MirrorWorker struct {
	consumer events.Consumer
	mirror   sheets.Mirror
	metrics  *metrics.Metrics
	logger   *log.Logger

	mirrored atomic.Int64
	failed   atomic.Int64
}

func NewMirrorWorker(consumer events.Consumer, mirror sheets.Mirror, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MirrorWorker{
		consumer: consumer,
		mirror:   mirror,
		metrics:  m,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled. Cancellation is a clean stop.
func (w *MirrorWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Mirror worker started", log.FieldOperation, log.OpStartup)
	err := w.consumer.Consume(ctx, w.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume events: %w", err)
	}
	w.logger.InfoContext(ctx, "Mirror worker stopped",
		log.FieldOperation, log.OpShutdown,
		"mirrored", w.mirrored.Load(),
		"failed", w.failed.Load())
	return nil
}

// HandleEvent writes e to the mirror.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e events.LedgerEvent) error {
	row := sheets.RowFromEvent(e)
	ref, err := w.mirror.AppendRow(ctx, row)
	if err != nil {
		w.failed.Add(1)
		w.observe("failure")
		w.logger.ErrorContext(ctx, "Failed to mirror event",
			log.FieldOperation, log.OpMirror,
			log.FieldEventID, e.EventID,
			log.FieldEventType, string(e.Type),
			log.FieldOwnerID, e.OwnerID,
			log.FieldError, err)
		return fmt.Errorf("append row: %w", err)
	}

	w.mirrored.Add(1)
	w.observe("success")
	w.logger.InfoContext(ctx, "Mirrored event",
		log.FieldOperation, log.OpMirror,
		log.FieldEventID, e.EventID,
		log.FieldEventType, string(e.Type),
		log.FieldOwnerID, e.OwnerID,
		log.FieldRecordID, e.Record.ID,
		log.FieldBalance, e.Balance.Cents,
		"sheets_ref", ref)
	return nil
}

// Stats returns the number of mirrored and failed events since start.
func (w *MirrorWorker) Stats() (mirrored, failed int64) {
	return w.mirrored.Load(), w.failed.Load()
}

func (w *MirrorWorker) observe(result string) {
	if w.metrics != nil {
		w.metrics.EventsMirrored.WithLabelValues(result).Inc()
	}
}
