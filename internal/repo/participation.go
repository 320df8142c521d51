package repo

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
)

// CreditPoints creates the account on first credit or adds points and bumps
// the per-activity counter. Both rows change in the caller's transaction.
func (r Repo) CreditPoints(ctx context.Context, tx *sql.Tx, actor string, activity domain.ActivityKind, points int, at string) error {
	if points <= 0 {
		return errors.New("points must be positive")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO participation(actor_id,total_points,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET total_points=total_points+excluded.total_points, updated_at=excluded.updated_at`,
		actor, points, at, at); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO participation_activity(actor_id,activity,count) VALUES (?,?,1)
ON CONFLICT(actor_id,activity) DO UPDATE SET count=count+1`, actor, string(activity))
	return err
}

// GetParticipation returns the stored account without a tier. Unknown actors
// yield ErrNotFound.
func (r Repo) GetParticipation(ctx context.Context, q Querier, actor string) (domain.ParticipationAccount, error) {
	if q == nil {
		q = r.DB
	}
	acct := domain.ParticipationAccount{Actor: actor, PerActivity: map[domain.ActivityKind]int{}}
	err := q.QueryRowContext(ctx, `SELECT total_points, updated_at FROM participation WHERE actor_id=?`, actor).Scan(&acct.TotalPoints, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return acct, ErrNotFound
	}
	if err != nil {
		return acct, err
	}
	rows, err := q.QueryContext(ctx, `SELECT activity, count FROM participation_activity WHERE actor_id=?`, actor)
	if err != nil {
		return acct, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind domain.ActivityKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return acct, err
		}
		acct.PerActivity[kind] = n
	}
	return acct, rows.Err()
}

// Leaderboard lists accounts by total points, ties broken by actor id.
func (r Repo) Leaderboard(ctx context.Context, limit int) ([]domain.ParticipationAccount, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := r.listIDs(ctx, `SELECT actor_id FROM participation ORDER BY total_points DESC, actor_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ParticipationAccount, 0, len(ids))
	for _, id := range ids {
		acct, err := r.GetParticipation(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		res = append(res, acct)
	}
	return res, nil
}
