package auth

import (
	"context"
	"fmt"
	"strings"

	"tally/internal/domain"
	"tally/internal/repo"
)

// ForbiddenError indicates the actor lacks the relation an action needs.
type ForbiddenError struct {
	Actor      string
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s lacks %s", e.Actor, e.Permission)
}

func (e ForbiddenError) Unwrap() error { return domain.ErrUnauthorized }

const (
	PermModerate   = "platform.moderate"
	PermOrgManage  = "org.manage"
	PermEndorse    = "endorsement.create"
	PermEdgeAccept = "edge.accept"
	PermMessage    = "conversation.message"
)

// Service answers role questions from configured moderators and stored
// platform roles and org memberships.
type Service struct {
	Repo       repo.Repo
	Moderators []string
}

func (s Service) IsModerator(ctx context.Context, actorID string) (bool, error) {
	if strings.TrimSpace(actorID) == "" {
		return false, nil
	}
	for _, m := range s.Moderators {
		if m == actorID {
			return true, nil
		}
	}
	for _, role := range []string{repo.RoleModerator, repo.RoleAdmin} {
		ok, err := s.Repo.HasRole(ctx, nil, actorID, role)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (s Service) RequireModerator(ctx context.Context, actorID string) error {
	ok, err := s.IsModerator(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Actor: actorID, Permission: PermModerate}
	}
	return nil
}

// RequireOrgMember fails unless actor belongs to org.
func (s Service) RequireOrgMember(ctx context.Context, orgID, actorID string) error {
	ok, err := s.Repo.IsOrgMember(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Actor: actorID, Permission: PermOrgManage}
	}
	return nil
}
