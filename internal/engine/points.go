package engine

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
	"tally/internal/ledger"
	"tally/internal/repo"
	"tally/internal/scoring"
)

// Credited reports the outcome of an automatic points credit that ran after
// its triggering command committed. Error is set when the credit failed; the
// command itself still stands.
type Credited struct {
	Account *domain.ParticipationAccount `json:"account,omitempty"`
	Points  int                          `json:"points,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

// Reward returns the configured points for activity.
func (e Engine) Reward(activity domain.ActivityKind) (int, bool) {
	if e.Config == nil {
		return 0, false
	}
	return e.Config.Reward(string(activity))
}

// Credit adds points to actor's account under activity. The account is
// created on first credit; totals only ever grow.
func (e Engine) Credit(ctx context.Context, actor string, activity domain.ActivityKind, points int) (domain.ParticipationAccount, error) {
	actor, err := required("credit", "actor", actor)
	if err != nil {
		return domain.ParticipationAccount{}, err
	}
	if activity == "" {
		return domain.ParticipationAccount{}, domain.Reject("credit", domain.ErrInvalidInput, "activity is required")
	}
	if points <= 0 {
		return domain.ParticipationAccount{}, domain.Reject("credit", domain.ErrInvalidInput, "points must be positive")
	}
	var acct domain.ParticipationAccount
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventCredit, AggregateKind: domain.AggregateParticipation, AggregateID: actor, ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			if err := e.Repo.CreditPoints(ctx, tx, actor, activity, points, e.stamp()); err != nil {
				return domain.LedgerEntry{}, err
			}
			acct, err = e.Repo.GetParticipation(ctx, tx, actor)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{Payload: map[string]any{"activity": string(activity), "points": points, "total": acct.TotalPoints}}, nil
		})
	if err != nil {
		return domain.ParticipationAccount{}, err
	}
	e.Metrics.ObserveCredit(string(activity), points)
	acct.Tier = scoring.TierFor(acct.TotalPoints, e.tiers())
	return acct, nil
}

// CreditActivity credits the configured reward for activity.
func (e Engine) CreditActivity(ctx context.Context, actor string, activity domain.ActivityKind) (domain.ParticipationAccount, error) {
	points, ok := e.Reward(activity)
	if !ok {
		return domain.ParticipationAccount{}, domain.Reject("credit", domain.ErrInvalidInput, "no reward configured for %q", activity)
	}
	return e.Credit(ctx, actor, activity, points)
}

// autoCredit runs after the primary command committed. Failures are logged
// and reported on the result; the command is not rolled back.
func (e Engine) autoCredit(ctx context.Context, actor string, activity domain.ActivityKind) Credited {
	points, ok := e.Reward(activity)
	if !ok || points <= 0 {
		return Credited{}
	}
	acct, err := e.Credit(ctx, actor, activity, points)
	if err != nil {
		e.logger().Warn("participation credit failed", "actor", actor, "activity", activity, "points", points, "err", err)
		return Credited{Points: points, Error: err.Error()}
	}
	return Credited{Account: &acct, Points: points}
}

// Participation returns actor's account with its tier. Actors without credits
// get an empty bronze account.
func (e Engine) Participation(ctx context.Context, actor string) (domain.ParticipationAccount, error) {
	acct, err := e.Repo.GetParticipation(ctx, nil, actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.ParticipationAccount{}, err
	}
	acct.Tier = scoring.TierFor(acct.TotalPoints, e.tiers())
	return acct, nil
}

func (e Engine) Leaderboard(ctx context.Context, limit int) ([]domain.ParticipationAccount, error) {
	accts, err := e.Repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	bounds := e.tiers()
	for i := range accts {
		accts[i].Tier = scoring.TierFor(accts[i].TotalPoints, bounds)
	}
	return accts, nil
}
