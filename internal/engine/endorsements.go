package engine

import (
	"context"
	"database/sql"

	"tally/internal/auth"
	"tally/internal/domain"
	"tally/internal/guard"
	"tally/internal/ledger"
	"tally/internal/scoring"
)

// Endorse records endorser vouching for subject's skill. The two must share
// an accepted connection, and each (endorser, subject, skill) is recorded once.
func (e Engine) Endorse(ctx context.Context, endorser, subject, skill, message string) (domain.Endorsement, error) {
	endorser, err := required("endorse", "endorser", endorser)
	if err != nil {
		return domain.Endorsement{}, err
	}
	subject, err = required("endorse", "subject", subject)
	if err != nil {
		return domain.Endorsement{}, err
	}
	skill = scoring.NormalizeSkill(skill)
	if skill == "" {
		return domain.Endorsement{}, domain.Reject("endorse", domain.ErrInvalidInput, "skill is required")
	}
	if endorser == subject {
		return domain.Endorsement{}, domain.Reject("endorse", domain.ErrInvalidInput, "cannot endorse yourself")
	}
	connected, err := e.Directory.AreConnected(ctx, endorser, subject)
	if err != nil {
		return domain.Endorsement{}, err
	}
	if !connected {
		return domain.Endorsement{}, domain.Reject("endorse", auth.ForbiddenError{Actor: endorser, Permission: auth.PermEndorse}, "endorsement requires an accepted connection")
	}
	key := guard.EndorsementKey(endorser, subject, skill)
	var rec domain.Endorsement
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventEndorse, AggregateKind: domain.AggregateEndorsement, AggregateID: key.Value, ActorID: endorser},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			id := newID()
			out, err := e.Guard.Reserve(ctx, tx, key, id)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			if !out.Acquired {
				return domain.LedgerEntry{}, domain.Duplicate("endorse", out.Existing)
			}
			rec = domain.Endorsement{ID: id, Endorser: endorser, Subject: subject, Skill: skill, Message: message, CreatedAt: e.stamp()}
			if err := e.Repo.InsertEndorsement(ctx, tx, rec); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{AggregateID: id, RecordID: id, Payload: map[string]any{"subject": subject, "skill": skill}}, nil
		})
	if err != nil {
		return domain.Endorsement{}, err
	}
	return rec, nil
}

func (e Engine) Endorsements(ctx context.Context, subject, skill string) ([]domain.Endorsement, error) {
	if skill != "" {
		skill = scoring.NormalizeSkill(skill)
	}
	return e.Repo.EndorsementsFor(ctx, subject, skill)
}
