package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/domain"
)

const votableColumns = `id,owner_id,title,support_count,oppose_count,neutral_count,feedback_count,status,version,created_at,updated_at`

func (r Repo) InsertVotable(ctx context.Context, tx *sql.Tx, v domain.Votable) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO votables(`+votableColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.Owner, v.Title, v.SupportCount, v.OpposeCount, v.NeutralCount, v.FeedbackCount, string(v.Status), v.Version, v.CreatedAt, v.UpdatedAt)
	return err
}

func scanVotable(row interface{ Scan(...any) error }) (domain.Votable, error) {
	var v domain.Votable
	err := row.Scan(&v.ID, &v.Owner, &v.Title, &v.SupportCount, &v.OpposeCount, &v.NeutralCount, &v.FeedbackCount, &v.Status, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) GetVotable(ctx context.Context, q Querier, id string) (domain.Votable, error) {
	if q == nil {
		q = r.DB
	}
	return scanVotable(q.QueryRowContext(ctx, `SELECT `+votableColumns+` FROM votables WHERE id=?`, id))
}

func (r Repo) ListVotables(ctx context.Context, status domain.VotableStatus, limit int) ([]domain.Votable, error) {
	query := `SELECT ` + votableColumns + ` FROM votables`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Votable
	for rows.Next() {
		v, err := scanVotable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) UpdateVotableStatus(ctx context.Context, tx *sql.Tx, id string, version int64, status domain.VotableStatus, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE votables SET status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(status), at, id, version))
}

// ApplyVoteDelta moves one unit into next and, when prev is set, out of prev,
// in a single statement so readers never see the vote counted twice.
func (r Repo) ApplyVoteDelta(ctx context.Context, tx *sql.Tx, id string, version int64, prev *domain.VoteType, next domain.VoteType, at string) error {
	if !next.Valid() || (prev != nil && !prev.Valid()) {
		return fmt.Errorf("vote delta: invalid vote type")
	}
	set := fmt.Sprintf("%[1]s=%[1]s+1", next.Column())
	if prev != nil {
		if *prev == next {
			return r.TouchVotable(ctx, tx, id, version, at)
		}
		set = fmt.Sprintf("%[1]s=%[1]s-1, %[2]s=%[2]s+1", prev.Column(), next.Column())
	}
	return casResult(tx.ExecContext(ctx, `UPDATE votables SET `+set+`, version=version+1, updated_at=? WHERE id=? AND version=?`, at, id, version))
}

func (r Repo) IncrementFeedback(ctx context.Context, tx *sql.Tx, id string, version int64, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE votables SET feedback_count=feedback_count+1, version=version+1, updated_at=? WHERE id=? AND version=?`, at, id, version))
}

func (r Repo) TouchVotable(ctx context.Context, tx *sql.Tx, id string, version int64, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE votables SET version=version+1, updated_at=? WHERE id=? AND version=?`, at, id, version))
}

func (r Repo) GetVote(ctx context.Context, q Querier, policyID, voterID string) (domain.Vote, error) {
	if q == nil {
		q = r.DB
	}
	var v domain.Vote
	err := q.QueryRowContext(ctx, `SELECT policy_id,voter_id,vote_type,COALESCE(comment,''),created_at,updated_at FROM votes WHERE policy_id=? AND voter_id=?`, policyID, voterID).
		Scan(&v.Policy, &v.Voter, &v.Type, &v.Comment, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) InsertVote(ctx context.Context, tx *sql.Tx, v domain.Vote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO votes(policy_id,voter_id,vote_type,comment,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		v.Policy, v.Voter, string(v.Type), nullable(v.Comment), v.CreatedAt, v.UpdatedAt)
	return err
}

func (r Repo) UpdateVote(ctx context.Context, tx *sql.Tx, v domain.Vote) error {
	_, err := tx.ExecContext(ctx, `UPDATE votes SET vote_type=?, comment=?, updated_at=? WHERE policy_id=? AND voter_id=?`,
		string(v.Type), nullable(v.Comment), v.UpdatedAt, v.Policy, v.Voter)
	return err
}

func (r Repo) ListVotes(ctx context.Context, policyID string) ([]domain.Vote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT policy_id,voter_id,vote_type,COALESCE(comment,''),created_at,updated_at FROM votes WHERE policy_id=? ORDER BY created_at ASC, voter_id ASC`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.Policy, &v.Voter, &v.Type, &v.Comment, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// CountVotesByType tallies the votes table, independent of the cached counters.
func (r Repo) CountVotesByType(ctx context.Context, policyID string) (map[domain.VoteType]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT vote_type, COUNT(*) FROM votes WHERE policy_id=? GROUP BY vote_type`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.VoteType]int{}
	for rows.Next() {
		var t domain.VoteType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		res[t] = n
	}
	return res, rows.Err()
}
