package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"tally/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, q Querier, actorID string, now string) error {
	if strings.TrimSpace(actorID) == "" {
		return errors.New("actor_id required")
	}
	if q == nil {
		q = r.DB
	}
	_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// UpsertProfile creates the actor if needed and replaces its skill set.
func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, p domain.ActorProfile) (domain.ActorProfile, error) {
	if err := r.EnsureActor(ctx, tx, p.ID, nowString()); err != nil {
		return domain.ActorProfile{}, err
	}
	if p.DisplayName != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE actors SET display_name=? WHERE id=?`, p.DisplayName, p.ID); err != nil {
			return domain.ActorProfile{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM actor_skills WHERE actor_id=?`, p.ID); err != nil {
		return domain.ActorProfile{}, err
	}
	for i, s := range p.Skills {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_skills(actor_id, skill, position) VALUES (?,?,?)`, p.ID, s, i); err != nil {
			return domain.ActorProfile{}, err
		}
	}
	return r.GetProfile(ctx, tx, p.ID)
}

func (r Repo) GetProfile(ctx context.Context, q Querier, id string) (domain.ActorProfile, error) {
	if q == nil {
		q = r.DB
	}
	var p domain.ActorProfile
	err := q.QueryRowContext(ctx, `SELECT id, COALESCE(display_name,''), created_at FROM actors WHERE id=?`, id).Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Skills, err = r.listStrings(ctx, q, `SELECT skill FROM actor_skills WHERE actor_id=? ORDER BY position ASC`, id)
	return p, err
}

// ActorSkills returns the skill set of actor, or ErrNotFound for unknown actors.
func (r Repo) ActorSkills(ctx context.Context, actor string) ([]string, error) {
	p, err := r.GetProfile(ctx, nil, actor)
	if err != nil {
		return nil, err
	}
	return p.Skills, nil
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.ActorProfile, error) {
	ids, err := r.listIDs(ctx, `SELECT id FROM actors ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ActorProfile, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProfile(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) listStrings(ctx context.Context, q Querier, query string, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
