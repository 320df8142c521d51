package repo

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
	"tally/internal/scoring"
)

const fundableColumns = `id,owner_id,title,goal_amount,goal_type,raised_amount,contributor_count,status,version,created_at,updated_at`

func (r Repo) InsertFundable(ctx context.Context, tx *sql.Tx, f domain.Fundable) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO fundables(`+fundableColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.Owner, f.Title, f.GoalAmount, string(f.GoalType), f.RaisedAmount, f.ContributorCount, string(f.Status), f.Version, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return err
	}
	for i, m := range f.Milestones {
		if _, err := tx.ExecContext(ctx, `INSERT INTO milestones(fundable_id,name,position) VALUES (?,?,?)`, f.ID, m, i); err != nil {
			return err
		}
	}
	return nil
}

// GetFundable loads f with its milestones and derived funding percentage.
func (r Repo) GetFundable(ctx context.Context, q Querier, id string) (domain.Fundable, error) {
	if q == nil {
		q = r.DB
	}
	var f domain.Fundable
	err := q.QueryRowContext(ctx, `SELECT `+fundableColumns+` FROM fundables WHERE id=?`, id).
		Scan(&f.ID, &f.Owner, &f.Title, &f.GoalAmount, &f.GoalType, &f.RaisedAmount, &f.ContributorCount, &f.Status, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	rows, err := q.QueryContext(ctx, `SELECT name, completed_at FROM milestones WHERE fundable_id=? ORDER BY position ASC`, id)
	if err != nil {
		return f, err
	}
	defer rows.Close()
	f.Milestones = []string{}
	f.CompletedMilestones = []string{}
	for rows.Next() {
		var name string
		var done sql.NullString
		if err := rows.Scan(&name, &done); err != nil {
			return f, err
		}
		f.Milestones = append(f.Milestones, name)
		if done.Valid {
			f.CompletedMilestones = append(f.CompletedMilestones, name)
		}
	}
	if err := rows.Err(); err != nil {
		return f, err
	}
	f.FundingPercentage = scoring.FundingPercentage(f.RaisedAmount, f.GoalAmount)
	return f, nil
}

// ApplyContribution adds amount to the running total, bumps the contributor
// count and writes status, guarded by version.
func (r Repo) ApplyContribution(ctx context.Context, tx *sql.Tx, id string, version int64, amount float64, status domain.FundableStatus, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE fundables SET raised_amount=raised_amount+?, contributor_count=contributor_count+1, status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		amount, string(status), at, id, version))
}

func (r Repo) UpdateFundableStatus(ctx context.Context, tx *sql.Tx, id string, version int64, status domain.FundableStatus, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE fundables SET status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(status), at, id, version))
}

// TouchFundable bumps version for changes stored outside the fundables row.
func (r Repo) TouchFundable(ctx context.Context, tx *sql.Tx, id string, version int64, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE fundables SET version=version+1, updated_at=? WHERE id=? AND version=?`, at, id, version))
}

func (r Repo) AppendMilestone(ctx context.Context, tx *sql.Tx, fundableID, name string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(fundable_id,name,position)
SELECT ?, ?, COALESCE(MAX(position)+1, 0) FROM milestones WHERE fundable_id=?`, fundableID, name, fundableID)
	return err
}

func (r Repo) CompleteMilestone(ctx context.Context, tx *sql.Tx, fundableID, name, at string) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET completed_at=? WHERE fundable_id=? AND name=? AND completed_at IS NULL`, at, fundableID, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FundableFilter narrows ListFundables.
type FundableFilter struct {
	Owner  string
	Status domain.FundableStatus
	Limit  int
}

func (r Repo) ListFundables(ctx context.Context, f FundableFilter) ([]domain.Fundable, error) {
	query := `SELECT id FROM fundables WHERE 1=1`
	var args []any
	if f.Owner != "" {
		query += ` AND owner_id=?`
		args = append(args, f.Owner)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	ids, err := r.listIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Fundable, 0, len(ids))
	for _, id := range ids {
		f, err := r.GetFundable(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

const contributionColumns = `id,fundable_id,contributor_id,amount,anonymous,COALESCE(message,''),created_at`

func (r Repo) InsertContribution(ctx context.Context, tx *sql.Tx, c domain.Contribution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contributions(id,fundable_id,contributor_id,amount,anonymous,message,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Fundable, c.Contributor, c.Amount, boolInt(c.Anonymous), nullable(c.Message), c.CreatedAt)
	return err
}

func (r Repo) ContributionsByFundable(ctx context.Context, fundableID string) ([]domain.Contribution, error) {
	return r.listContributions(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE fundable_id=? ORDER BY created_at DESC, id DESC`, fundableID)
}

func (r Repo) ContributionsByContributor(ctx context.Context, actor string) ([]domain.Contribution, error) {
	return r.listContributions(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE contributor_id=? ORDER BY created_at DESC, id DESC`, actor)
}

// SumContributions returns the ledger total and record count for a fundable.
func (r Repo) SumContributions(ctx context.Context, fundableID string) (float64, int, error) {
	var sum float64
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0), COUNT(*) FROM contributions WHERE fundable_id=?`, fundableID).Scan(&sum, &n)
	return sum, n, err
}

func (r Repo) listContributions(ctx context.Context, query string, args ...any) ([]domain.Contribution, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contribution
	for rows.Next() {
		var c domain.Contribution
		var anon int
		if err := rows.Scan(&c.ID, &c.Fundable, &c.Contributor, &c.Amount, &anon, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Anonymous = anon != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
