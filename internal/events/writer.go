package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tally/internal/domain"
)

// Writer appends journal rows inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes entry and returns it with ID and TS filled in.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if entry.Kind == "" || entry.AggregateKind == "" || entry.AggregateID == "" {
		return entry, fmt.Errorf("journal entry requires kind and aggregate")
	}
	entry.TS = now().UTC().Format(time.RFC3339Nano)
	payload := entry.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return entry, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,aggregate_kind,aggregate_id,record_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		entry.TS, string(entry.Kind), string(entry.AggregateKind), entry.AggregateID, nullable(entry.RecordID), entry.ActorID, string(data))
	if err != nil {
		return entry, fmt.Errorf("append event %s: %w", entry.Kind, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return entry, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
