package engine

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
	"tally/internal/fsm"
	"tally/internal/guard"
	"tally/internal/ledger"
	"tally/internal/repo"
)

type PolicyResult struct {
	Policy domain.Votable `json:"policy"`
	Points Credited       `json:"points"`
}

type VoteResult struct {
	Policy  domain.Votable `json:"policy"`
	Vote    domain.Vote    `json:"vote"`
	Changed bool           `json:"changed"`
	Points  Credited       `json:"points"`
}

type FeedbackResult struct {
	Policy   domain.Votable  `json:"policy"`
	Feedback domain.Feedback `json:"feedback"`
	Points   Credited        `json:"points"`
}

// CreatePolicy opens a draft votable and credits policy_creation.
func (e Engine) CreatePolicy(ctx context.Context, owner, title string) (PolicyResult, error) {
	owner, err := required("create policy", "owner", owner)
	if err != nil {
		return PolicyResult{}, err
	}
	title, err = required("create policy", "title", title)
	if err != nil {
		return PolicyResult{}, err
	}
	id := newID()
	now := e.stamp()
	v := domain.Votable{ID: id, Owner: owner, Title: title, Status: domain.VotableDraft, Version: 1, CreatedAt: now, UpdatedAt: now}
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventCreatePolicy, AggregateKind: domain.AggregateVotable, AggregateID: id, ActorID: owner},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			if err := e.Repo.InsertVotable(ctx, tx, v); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{RecordID: id, Payload: map[string]any{"title": title}}, nil
		})
	if err != nil {
		return PolicyResult{}, err
	}
	return PolicyResult{Policy: v, Points: e.autoCredit(ctx, owner, domain.ActivityPolicyCreation)}, nil
}

var policyEvents = map[fsm.VotableEvent]domain.EventKind{
	fsm.VotableOpen:      domain.EventOpenPolicy,
	fsm.VotableReview:    domain.EventReviewPolicy,
	fsm.VotableApprove:   domain.EventApprovePolicy,
	fsm.VotableReject:    domain.EventRejectPolicy,
	fsm.VotableImplement: domain.EventImplementPolicy,
}

// TransitionPolicy applies a lifecycle event (open, review, approve, reject,
// implement) to a policy.
func (e Engine) TransitionPolicy(ctx context.Context, actor, id string, event fsm.VotableEvent) (domain.Votable, error) {
	kind, ok := policyEvents[event]
	if !ok {
		return domain.Votable{}, domain.Reject("policy", domain.ErrInvalidInput, "unknown policy event %q", event)
	}
	actor, err := required("policy", "actor", actor)
	if err != nil {
		return domain.Votable{}, err
	}
	if id, err = required("policy", "policy", id); err != nil {
		return domain.Votable{}, err
	}
	moderator, err := e.isModerator(ctx, actor)
	if err != nil {
		return domain.Votable{}, err
	}
	var snapshot domain.Votable
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: kind, AggregateKind: domain.AggregateVotable, AggregateID: id, ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			v, err := e.Repo.GetVotable(ctx, tx, id)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "policy", "policy", id)
			}
			next, err := fsm.Votables.Apply(v.Status, event, fsm.VotableContext{Actor: actor, Moderator: moderator, Owner: v.Owner})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			at := e.stamp()
			if err := e.Repo.UpdateVotableStatus(ctx, tx, id, v.Version, next, at); err != nil {
				return domain.LedgerEntry{}, err
			}
			from := v.Status
			v.Status, v.Version, v.UpdatedAt = next, v.Version+1, at
			snapshot = v
			return domain.LedgerEntry{Payload: map[string]any{"from": string(from), "to": string(next)}}, nil
		})
	if err != nil {
		return domain.Votable{}, err
	}
	return snapshot, nil
}

// Vote records voter's stance on a policy. A repeat vote replaces the earlier
// one: the old counter loses one and the new counter gains one in the same
// statement, and no points are credited again.
func (e Engine) Vote(ctx context.Context, voter, policyID string, t domain.VoteType, comment string) (VoteResult, error) {
	voter, err := required("vote", "voter", voter)
	if err != nil {
		return VoteResult{}, err
	}
	if policyID, err = required("vote", "policy", policyID); err != nil {
		return VoteResult{}, err
	}
	if !t.Valid() {
		return VoteResult{}, domain.Reject("vote", domain.ErrInvalidInput, "unknown vote type %q", t)
	}
	var res VoteResult
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventVote, AggregateKind: domain.AggregateVotable, AggregateID: policyID, ActorID: voter},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			res = VoteResult{}
			v, err := e.Repo.GetVotable(ctx, tx, policyID)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "vote", "policy", policyID)
			}
			if _, err := fsm.Votables.Apply(v.Status, fsm.VotableVote, fsm.VotableContext{Actor: voter, Owner: v.Owner}); err != nil {
				return domain.LedgerEntry{}, err
			}
			at := e.stamp()
			prev, err := e.Repo.GetVote(ctx, tx, policyID, voter)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				out, err := e.Guard.Reserve(ctx, tx, guard.VoteKey(policyID, voter), voter)
				if err != nil {
					return domain.LedgerEntry{}, err
				}
				if !out.Acquired {
					return domain.LedgerEntry{}, domain.Duplicate("vote", out.Existing)
				}
				res.Vote = domain.Vote{Policy: policyID, Voter: voter, Type: t, Comment: comment, CreatedAt: at, UpdatedAt: at}
				if err := e.Repo.InsertVote(ctx, tx, res.Vote); err != nil {
					return domain.LedgerEntry{}, err
				}
				if err := e.Repo.ApplyVoteDelta(ctx, tx, policyID, v.Version, nil, t, at); err != nil {
					return domain.LedgerEntry{}, err
				}
			case err != nil:
				return domain.LedgerEntry{}, err
			default:
				res.Changed = true
				old := prev.Type
				res.Vote = prev
				res.Vote.Type, res.Vote.Comment, res.Vote.UpdatedAt = t, comment, at
				if err := e.Repo.UpdateVote(ctx, tx, res.Vote); err != nil {
					return domain.LedgerEntry{}, err
				}
				if err := e.Repo.ApplyVoteDelta(ctx, tx, policyID, v.Version, &old, t, at); err != nil {
					return domain.LedgerEntry{}, err
				}
			}
			res.Policy, err = e.Repo.GetVotable(ctx, tx, policyID)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			entry := domain.LedgerEntry{RecordID: voter, Payload: map[string]any{"vote_type": string(t)}}
			if res.Changed {
				entry.Kind = domain.EventChangeVote
				entry.Payload["previous"] = string(prev.Type)
			}
			return entry, nil
		})
	if err != nil {
		return VoteResult{}, err
	}
	if !res.Changed {
		res.Points = e.autoCredit(ctx, voter, domain.ActivityPolicyVote)
	}
	return res, nil
}

// Feedback appends a comment to a policy inside its input window and credits
// policy_feedback.
func (e Engine) Feedback(ctx context.Context, author, policyID, kind, content string) (FeedbackResult, error) {
	author, err := required("feedback", "author", author)
	if err != nil {
		return FeedbackResult{}, err
	}
	if policyID, err = required("feedback", "policy", policyID); err != nil {
		return FeedbackResult{}, err
	}
	if content, err = required("feedback", "content", content); err != nil {
		return FeedbackResult{}, err
	}
	if kind == "" {
		kind = "comment"
	}
	var res FeedbackResult
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventFeedback, AggregateKind: domain.AggregateVotable, AggregateID: policyID, ActorID: author},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			v, err := e.Repo.GetVotable(ctx, tx, policyID)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "feedback", "policy", policyID)
			}
			if _, err := fsm.Votables.Apply(v.Status, fsm.VotableFeedback, fsm.VotableContext{Actor: author, Owner: v.Owner}); err != nil {
				return domain.LedgerEntry{}, err
			}
			at := e.stamp()
			res.Feedback = domain.Feedback{ID: newID(), Policy: policyID, Author: author, Kind: kind, Content: content, CreatedAt: at}
			if err := e.Repo.InsertFeedback(ctx, tx, res.Feedback); err != nil {
				return domain.LedgerEntry{}, err
			}
			if err := e.Repo.IncrementFeedback(ctx, tx, policyID, v.Version, at); err != nil {
				return domain.LedgerEntry{}, err
			}
			v.FeedbackCount++
			v.Version++
			v.UpdatedAt = at
			res.Policy = v
			return domain.LedgerEntry{RecordID: res.Feedback.ID, Payload: map[string]any{"kind": kind}}, nil
		})
	if err != nil {
		return FeedbackResult{}, err
	}
	res.Points = e.autoCredit(ctx, author, domain.ActivityPolicyFeedback)
	return res, nil
}

func (e Engine) GetPolicy(ctx context.Context, id string) (domain.Votable, error) {
	v, err := e.Repo.GetVotable(ctx, nil, id)
	return v, notFound(err, "policy", "policy", id)
}

func (e Engine) ListPolicies(ctx context.Context, status domain.VotableStatus, limit int) ([]domain.Votable, error) {
	return e.Repo.ListVotables(ctx, status, limit)
}

func (e Engine) PolicyVotes(ctx context.Context, id string) ([]domain.Vote, error) {
	if _, err := e.GetPolicy(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListVotes(ctx, id)
}

func (e Engine) PolicyFeedback(ctx context.Context, id string) ([]domain.Feedback, error) {
	if _, err := e.GetPolicy(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListFeedback(ctx, id)
}
