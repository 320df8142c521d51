// Package guard enforces at-most-one action per uniqueness key. A
// reservation is a row in the reservations table written inside the same
// transaction as the action it protects, so it commits or rolls back with it.
package guard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindEdge        Kind = "edge"
	KindVote        Kind = "vote"
	KindEndorsement Kind = "endorsement"
	KindApplication Kind = "application"
)

// Key is a normalized uniqueness key.
type Key struct {
	Kind  Kind
	Value string
}

func (k Key) String() string { return string(k.Kind) + ":" + k.Value }

const sep = "\x1f"

func join(parts ...string) string { return strings.Join(parts, sep) }

// EdgeKey is direction independent: EdgeKey(a,b) == EdgeKey(b,a).
func EdgeKey(a, b string) Key {
	if b < a {
		a, b = b, a
	}
	return Key{Kind: KindEdge, Value: join(a, b)}
}

func VoteKey(policy, voter string) Key {
	return Key{Kind: KindVote, Value: join(policy, voter)}
}

func EndorsementKey(endorser, subject, skill string) Key {
	return Key{Kind: KindEndorsement, Value: join(endorser, subject, strings.ToLower(strings.TrimSpace(skill)))}
}

func ApplicationKey(job, applicant string) Key {
	return Key{Kind: KindApplication, Value: join(job, applicant)}
}

// Outcome of a reservation attempt. When Acquired is false, Existing names
// the record already holding the key.
type Outcome struct {
	Acquired bool
	Existing string
}

type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Guard struct {
	Now func() time.Time
}

// Reserve claims key for holderID inside tx.
func (g Guard) Reserve(ctx context.Context, tx *sql.Tx, key Key, holderID string) (Outcome, error) {
	if key.Kind == "" || key.Value == "" {
		return Outcome{}, fmt.Errorf("reserve: empty key")
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO reservations(kind,key,holder_id,created_at) VALUES (?,?,?,?) ON CONFLICT(kind,key) DO NOTHING`,
		string(key.Kind), key.Value, holderID, now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve %s: %w", key.Kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Outcome{}, err
	}
	if n == 1 {
		return Outcome{Acquired: true}, nil
	}
	existing, found, err := g.Lookup(ctx, tx, key)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{}, fmt.Errorf("reserve %s: conflict without holder", key.Kind)
	}
	return Outcome{Existing: existing}, nil
}

// Lookup returns the holder of key, if any.
func (g Guard) Lookup(ctx context.Context, q Querier, key Key) (string, bool, error) {
	var holder string
	err := q.QueryRowContext(ctx, `SELECT holder_id FROM reservations WHERE kind=? AND key=?`, string(key.Kind), key.Value).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}
