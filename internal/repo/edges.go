package repo

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
	"tally/internal/guard"
)

const edgeColumns = `id,party_a,party_b,initiator,status,COALESCE(message,''),version,created_at,accepted_at`

// PairKey is the stored, direction-independent identity of an edge.
func PairKey(a, b string) string { return guard.EdgeKey(a, b).Value }

func scanEdge(row interface{ Scan(...any) error }) (domain.Edge, error) {
	var e domain.Edge
	var accepted sql.NullString
	err := row.Scan(&e.ID, &e.PartyA, &e.PartyB, &e.Initiator, &e.Status, &e.Message, &e.Version, &e.CreatedAt, &accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if accepted.Valid {
		e.AcceptedAt = &accepted.String
	}
	return e, nil
}

func (r Repo) InsertEdge(ctx context.Context, tx *sql.Tx, e domain.Edge) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO edges(id,pair_key,party_a,party_b,initiator,status,message,version,created_at,accepted_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, PairKey(e.PartyA, e.PartyB), e.PartyA, e.PartyB, e.Initiator, string(e.Status), nullable(e.Message), e.Version, e.CreatedAt, nullableStringPtr(e.AcceptedAt))
	return err
}

func (r Repo) GetEdge(ctx context.Context, q Querier, id string) (domain.Edge, error) {
	if q == nil {
		q = r.DB
	}
	return scanEdge(q.QueryRowContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE id=?`, id))
}

// EdgeBetween returns the edge for the unordered pair (a, b).
func (r Repo) EdgeBetween(ctx context.Context, q Querier, a, b string) (domain.Edge, error) {
	if q == nil {
		q = r.DB
	}
	return scanEdge(q.QueryRowContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE pair_key=?`, PairKey(a, b)))
}

// AcceptEdge flips a pending edge to accepted if its version is unchanged.
func (r Repo) AcceptEdge(ctx context.Context, tx *sql.Tx, id string, version int64, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE edges SET status=?, accepted_at=?, version=version+1 WHERE id=? AND version=?`,
		string(domain.EdgeAccepted), at, id, version))
}

// AreConnected reports whether a and b share an accepted edge.
func (r Repo) AreConnected(ctx context.Context, a, b string) (bool, error) {
	e, err := r.EdgeBetween(ctx, nil, a, b)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Status == domain.EdgeAccepted, nil
}

// Connections lists accepted edges touching actor, newest first.
func (r Repo) Connections(ctx context.Context, actor string) ([]domain.Edge, error) {
	return r.listEdges(ctx, `SELECT `+edgeColumns+` FROM edges WHERE (party_a=? OR party_b=?) AND status=? ORDER BY COALESCE(accepted_at, created_at) DESC, id DESC`,
		actor, actor, string(domain.EdgeAccepted))
}

// PendingRequests lists pending edges awaiting actor's acceptance.
func (r Repo) PendingRequests(ctx context.Context, actor string) ([]domain.Edge, error) {
	return r.listEdges(ctx, `SELECT `+edgeColumns+` FROM edges WHERE (party_a=? OR party_b=?) AND initiator<>? AND status=? ORDER BY created_at DESC, id DESC`,
		actor, actor, actor, string(domain.EdgePending))
}

// SentRequests lists pending edges actor initiated.
func (r Repo) SentRequests(ctx context.Context, actor string) ([]domain.Edge, error) {
	return r.listEdges(ctx, `SELECT `+edgeColumns+` FROM edges WHERE initiator=? AND status=? ORDER BY created_at DESC, id DESC`,
		actor, string(domain.EdgePending))
}

func (r Repo) CountEdges(ctx context.Context, a, b string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE pair_key=?`, PairKey(a, b)).Scan(&n)
	return n, err
}

func (r Repo) listEdges(ctx context.Context, query string, args ...any) ([]domain.Edge, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
