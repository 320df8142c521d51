// Package ledger runs every aggregate mutation as one atomic unit: the
// aggregate's lock is held while a single IMMEDIATE transaction applies the
// guard, the transition, the record, the counter delta and the journal row.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tally/internal/domain"
	"tally/internal/events"
	"tally/internal/keylock"
	"tally/internal/logger"
	"tally/internal/metrics"
	"tally/internal/repo"
)

const DefaultMaxRetries = 8

// Command identifies the aggregate a unit mutates. AggregateID is the lock
// identity; for records whose id is minted inside the unit (a new edge, an
// application) it is the uniqueness key instead, and the mutation reports the
// real id on the returned entry.
type Command struct {
	Kind          domain.EventKind
	AggregateKind domain.AggregateKind
	AggregateID   string
	ActorID       string
}

func (c Command) lockKey() string { return string(c.AggregateKind) + "/" + c.AggregateID }

// Mutation applies a command inside tx and describes the journal entry.
type Mutation func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error)

type Writer struct {
	DB         *sql.DB
	Locks      *keylock.Locker
	Journal    events.Writer
	Metrics    *metrics.Ledger
	Log        *logger.Logger
	Tracer     trace.Tracer
	MaxRetries int
}

func New(db *sql.DB, log *logger.Logger, m *metrics.Ledger) *Writer {
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{
		DB:         db,
		Locks:      keylock.New(),
		Metrics:    m,
		Log:        log,
		Tracer:     otel.Tracer("tally/ledger"),
		MaxRetries: DefaultMaxRetries,
	}
}

// Record runs fn under the aggregate lock and commits it with its journal
// entry. Version conflicts and busy-store errors rerun the whole unit; domain
// rejections abort at once with nothing written.
func (w *Writer) Record(ctx context.Context, cmd Command, fn Mutation) (domain.LedgerEntry, error) {
	if cmd.Kind == "" || cmd.AggregateKind == "" || cmd.AggregateID == "" {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: command requires kind and aggregate")
	}
	tracer := w.Tracer
	if tracer == nil {
		tracer = otel.Tracer("tally/ledger")
	}
	ctx, span := tracer.Start(ctx, "ledger.record", trace.WithAttributes(
		attribute.String("ledger.kind", string(cmd.Kind)),
		attribute.String("ledger.aggregate_kind", string(cmd.AggregateKind)),
		attribute.String("ledger.aggregate_id", cmd.AggregateID),
	))
	defer span.End()

	start := time.Now()
	locks := w.Locks
	if locks == nil {
		locks = keylock.New()
		w.Locks = locks
	}
	unlock := locks.Lock(cmd.lockKey())
	defer unlock()

	var (
		entry domain.LedgerEntry
		err   error
	)
	for attempt := 0; ; attempt++ {
		entry, err = w.once(ctx, cmd, fn)
		if err == nil || !Retryable(err) || attempt >= w.maxRetries() {
			break
		}
		w.Metrics.ObserveRetry(string(cmd.Kind))
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
		w.logger().Debug("ledger retry", "kind", cmd.Kind, "aggregate", cmd.AggregateID, "attempt", attempt+1, "err", err)
		if err := backoff(ctx, attempt); err != nil {
			return domain.LedgerEntry{}, err
		}
	}
	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		w.Metrics.ObserveCommand(string(cmd.Kind), metrics.OutcomeOK, elapsed)
		span.SetAttributes(attribute.Int64("ledger.entry_id", entry.ID))
	case domain.IsDomain(err):
		w.Metrics.ObserveCommand(string(cmd.Kind), metrics.OutcomeRejected, elapsed)
		span.SetAttributes(attribute.String("ledger.rejected", err.Error()))
		w.logger().Debug("command rejected", "kind", cmd.Kind, "aggregate", cmd.AggregateID, "actor", cmd.ActorID, "err", err)
	default:
		w.Metrics.ObserveCommand(string(cmd.Kind), metrics.OutcomeError, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger().Error("ledger unit failed", "kind", cmd.Kind, "aggregate", cmd.AggregateID, "err", err)
	}
	return entry, err
}

func (w *Writer) once(ctx context.Context, cmd Command, fn Mutation) (domain.LedgerEntry, error) {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	entry, err := fn(ctx, tx)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.Kind == "" {
		entry.Kind = cmd.Kind
	}
	if entry.AggregateKind == "" {
		entry.AggregateKind = cmd.AggregateKind
	}
	if entry.AggregateID == "" {
		entry.AggregateID = cmd.AggregateID
	}
	if entry.ActorID == "" {
		entry.ActorID = cmd.ActorID
	}
	entry, err = w.Journal.Append(ctx, tx, entry)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

func (w *Writer) maxRetries() int {
	if w.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return w.MaxRetries
}

func (w *Writer) logger() *logger.Logger {
	if w.Log == nil {
		return logger.Nop()
	}
	return w.Log
}

// Retryable reports whether err is a transient store conflict.
func Retryable(err error) bool {
	if err == nil || domain.IsDomain(err) {
		return false
	}
	if errors.Is(err, repo.ErrVersionConflict) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(1<<min(attempt, 6)) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
