package repo

import (
	"context"
	"database/sql"

	"tally/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,sender_id,recipient_id,content,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Sender, m.Recipient, m.Content, m.CreatedAt)
	return err
}

// Conversation lists messages exchanged between a and b in either
// direction, oldest first.
func (r Repo) Conversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,sender_id,recipient_id,content,created_at FROM messages
		WHERE (sender_id=? AND recipient_id=?) OR (sender_id=? AND recipient_id=?)
		ORDER BY created_at ASC, rowid ASC`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
