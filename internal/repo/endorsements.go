package repo

import (
	"context"
	"database/sql"

	"tally/internal/domain"
)

func (r Repo) InsertEndorsement(ctx context.Context, tx *sql.Tx, e domain.Endorsement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO endorsements(id,endorser_id,subject_id,skill,message,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.Endorser, e.Subject, e.Skill, nullable(e.Message), e.CreatedAt)
	return err
}

// EndorsementsFor lists endorsements received by subject, optionally for one skill.
func (r Repo) EndorsementsFor(ctx context.Context, subject, skill string) ([]domain.Endorsement, error) {
	query := `SELECT id,endorser_id,subject_id,skill,COALESCE(message,''),created_at FROM endorsements WHERE subject_id=?`
	args := []any{subject}
	if skill != "" {
		query += ` AND skill=?`
		args = append(args, skill)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Endorsement
	for rows.Next() {
		var e domain.Endorsement
		if err := rows.Scan(&e.ID, &e.Endorser, &e.Subject, &e.Skill, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
