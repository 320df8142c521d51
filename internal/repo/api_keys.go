package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"tally/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed key for an actor, creating the actor row if needed.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.ActorID == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = nowString()
	}
	if err := r.EnsureActor(ctx, tx, key.ActorID, key.CreatedAt); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// ActorForKey resolves a raw API key to its actor.
func (r Repo) ActorForKey(ctx context.Context, raw string) (domain.APIKey, error) {
	var key domain.APIKey
	err := r.DB.QueryRowContext(ctx, `SELECT id, actor_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, HashAPIKey(raw)).
		Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := `SELECT id, actor_id, COALESCE(name,''), key_hash, created_at FROM api_keys`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
