package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tally/internal/config"
	"tally/internal/domain"
)

// Repo is the aggregate store. Read methods take a Querier so the same query
// serves both plain reads and reads inside a ledger transaction.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = domain.ErrNotFound
	// ErrVersionConflict reports a lost compare-and-swap on an aggregate row.
	ErrVersionConflict = errors.New("version conflict")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Q returns tx when set, otherwise the shared handle.
func (r Repo) Q(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// casResult turns a zero-row CAS update into ErrVersionConflict.
func casResult(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r Repo) UpsertConfig(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.Q(tx).ExecContext(ctx, `INSERT INTO config(id,config_json,updated_at) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), nowString())
	return err
}

func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM config WHERE id=1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// EventFilter narrows a journal listing. Zero fields match everything.
type EventFilter struct {
	Type          string
	AggregateKind string
	AggregateID   string
	ActorID       string
	Cursor        int64
	Limit         int
}

// LatestEvents returns journal rows newest first, starting below Cursor.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.AggregateKind != "" {
		clauses = append(clauses, "aggregate_kind=?")
		args = append(args, f.AggregateKind)
	}
	if f.AggregateID != "" {
		clauses = append(clauses, "aggregate_id=?")
		args = append(args, f.AggregateID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id,ts,type,aggregate_kind,aggregate_id,COALESCE(record_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,aggregate_kind,aggregate_id,COALESCE(record_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) CountEvents(ctx context.Context, q Querier, aggregateKind domain.AggregateKind, aggregateID string) (int, error) {
	if q == nil {
		q = r.DB
	}
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE aggregate_kind=? AND aggregate_id=?`, string(aggregateKind), aggregateID).Scan(&n)
	return n, err
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AggregateKind, &e.AggregateID, &e.RecordID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
