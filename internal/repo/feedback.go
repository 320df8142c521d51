package repo

import (
	"context"
	"database/sql"

	"tally/internal/domain"
)

func (r Repo) InsertFeedback(ctx context.Context, tx *sql.Tx, f domain.Feedback) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO feedback(id,policy_id,author_id,kind,content,created_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.Policy, f.Author, f.Kind, f.Content, f.CreatedAt)
	return err
}

func (r Repo) ListFeedback(ctx context.Context, policyID string) ([]domain.Feedback, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,policy_id,author_id,kind,content,created_at FROM feedback WHERE policy_id=? ORDER BY created_at ASC, id ASC`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Feedback
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.Policy, &f.Author, &f.Kind, &f.Content, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
