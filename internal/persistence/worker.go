package persistence

import (
	"context"
	"database/sql"
	"log"
	"time"

	"FarmLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. It runs
// independently from the engine goroutine; the engine's persist channel uses
// blocking sends, so if this worker falls behind the engine stalls and no
// output is ever lost.
type Worker struct {
	writer       *EventLogWriter
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Writer exposes the underlying writer for recovery queries.
func (w *Worker) Writer() *EventLogWriter {
	return w.writer
}

// Run batches incoming records and flushes when the batch fills or the flush
// timeout expires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	events := make([]EventRow, 0, w.batchSize)
	snaps := make([]SnapshotRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(events) > 0 {
				if err := w.flush(context.Background(), events, snaps); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case rec, ok := <-w.inputChan:
			if !ok {
				if len(events) > 0 {
					if err := w.flush(context.Background(), events, snaps); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			events = append(events, rec.Event)
			if rec.Snapshot != nil {
				snaps = append(snaps, *rec.Snapshot)
			}

			if len(events) >= w.batchSize {
				if err := w.flushWithRetry(ctx, events, snaps); err != nil {
					log.Printf("ERROR: batch flush failed: %v", err)
				}
				events = events[:0]
				snaps = snaps[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(events) > 0 {
				if err := w.flushWithRetry(ctx, events, snaps); err != nil {
					log.Printf("ERROR: timeout flush failed: %v", err)
				}
				events = events[:0]
				snaps = snaps[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops
// records: it retries until the write succeeds or the context is cancelled,
// and even then attempts one final flush so a graceful shutdown keeps the
// batch.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, snaps []SnapshotRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(events))
			select {
			case <-ctx.Done():
				return w.flush(context.Background(), events, snaps)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, events, snaps)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistRetry.Inc()
		}
	}
}

// flush writes events and snapshots in a single transaction.
func (w *Worker) flush(ctx context.Context, events []EventRow, snaps []SnapshotRow) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}
	if err := w.writer.WriteSnapshotBatch(ctx, tx, snaps); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_snapshots").Inc()
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistEventsWritten.Add(float64(len(events)))
		w.metrics.PersistSnapshotsWritten.Add(float64(len(snaps)))
		if len(events) > 0 {
			w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}
	return nil
}
