package repo

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
)

// Platform roles.
const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Organization member roles.
const (
	OrgRoleOwner  = "owner"
	OrgRoleMember = "member"
)

func (r Repo) GrantRole(ctx context.Context, tx *sql.Tx, actorID, role string) error {
	if err := r.EnsureActor(ctx, tx, actorID, nowString()); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO platform_roles(actor_id, role) VALUES (?,?)`, actorID, role)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID, role string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM platform_roles WHERE actor_id=? AND role=?`, actorID, role)
	return err
}

func (r Repo) HasRole(ctx context.Context, q Querier, actorID, role string) (bool, error) {
	if q == nil {
		q = r.DB
	}
	var n int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM platform_roles WHERE actor_id=? AND role=? LIMIT 1`, actorID, role).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	return r.listStrings(ctx, r.DB, `SELECT role FROM platform_roles WHERE actor_id=? ORDER BY role ASC`, actorID)
}

func (r Repo) InsertOrg(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO organizations(id, name, created_at) VALUES (?,?,?)`, o.ID, o.Name, o.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, q Querier, id string) (domain.Organization, error) {
	if q == nil {
		q = r.DB
	}
	var o domain.Organization
	err := q.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id=?`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) AddOrgMember(ctx context.Context, tx *sql.Tx, orgID, actorID, role string) error {
	if err := r.EnsureActor(ctx, tx, actorID, nowString()); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO org_members(org_id, actor_id, role) VALUES (?,?,?)
ON CONFLICT(org_id, actor_id) DO UPDATE SET role=excluded.role`, orgID, actorID, role)
	return err
}

// IsOrgMember reports whether actor belongs to org with any role.
func (r Repo) IsOrgMember(ctx context.Context, orgID, actorID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM org_members WHERE org_id=? AND actor_id=? LIMIT 1`, orgID, actorID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) OrgMembers(ctx context.Context, orgID string) ([]string, error) {
	return r.listStrings(ctx, r.DB, `SELECT actor_id FROM org_members WHERE org_id=? ORDER BY actor_id ASC`, orgID)
}
