package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"tally/internal/domain"
	"tally/internal/repo"
)

// GrantRole gives actor a platform role. It is an operator action with no
// actor check; callers gate it.
func (e Engine) GrantRole(ctx context.Context, actor, role string) error {
	actor, err := required("grant role", "actor", actor)
	if err != nil {
		return err
	}
	switch role {
	case repo.RoleModerator, repo.RoleAdmin:
	default:
		return domain.Reject("grant role", domain.ErrInvalidInput, "unknown role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.GrantRole(ctx, tx, actor, role); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actor, role string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, actor, role); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for actor. The raw key is returned once; only its
// hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor, name string) (string, domain.APIKey, error) {
	actor, err := required("api key", "actor", actor)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "tl_" + hex.EncodeToString(buf)
	key := domain.APIKey{ID: newID(), ActorID: actor, Name: name, KeyHash: repo.HashAPIKey(raw), CreatedAt: e.stamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// Journal lists ledger entries newest first.
func (e Engine) Journal(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
