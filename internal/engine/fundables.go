package engine

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"tally/internal/domain"
	"tally/internal/fsm"
	"tally/internal/ledger"
	"tally/internal/repo"
)

type ProposeOptions struct {
	Owner      string
	Title      string
	GoalAmount float64
	GoalType   domain.GoalType
	Milestones []string
}

// ProposeProject creates a fundable awaiting moderator approval.
func (e Engine) ProposeProject(ctx context.Context, opts ProposeOptions) (domain.Fundable, error) {
	owner, err := required("propose", "owner", opts.Owner)
	if err != nil {
		return domain.Fundable{}, err
	}
	title, err := required("propose", "title", opts.Title)
	if err != nil {
		return domain.Fundable{}, err
	}
	if opts.GoalType == "" {
		opts.GoalType = domain.GoalFixed
	}
	if !opts.GoalType.Valid() {
		return domain.Fundable{}, domain.Reject("propose", domain.ErrInvalidInput, "unknown goal type %q", opts.GoalType)
	}
	if opts.GoalAmount < 0 || math.IsNaN(opts.GoalAmount) || math.IsInf(opts.GoalAmount, 0) {
		return domain.Fundable{}, domain.Reject("propose", domain.ErrInvalidInput, "goal amount must be a non-negative number")
	}
	if opts.GoalType == domain.GoalFixed && opts.GoalAmount <= 0 {
		return domain.Fundable{}, domain.Reject("propose", domain.ErrInvalidInput, "fixed goal requires a positive amount")
	}
	milestones, err := uniqueMilestones(opts.Milestones)
	if err != nil {
		return domain.Fundable{}, err
	}
	id := newID()
	now := e.stamp()
	f := domain.Fundable{
		ID: id, Owner: owner, Title: title, GoalAmount: opts.GoalAmount, GoalType: opts.GoalType,
		Status: domain.FundablePendingApproval, Milestones: milestones, CompletedMilestones: []string{},
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventPropose, AggregateKind: domain.AggregateFundable, AggregateID: id, ActorID: owner},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			if err := e.Repo.InsertFundable(ctx, tx, f); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{RecordID: id, Payload: map[string]any{"goal_amount": f.GoalAmount, "goal_type": string(f.GoalType)}}, nil
		})
	if err != nil {
		return domain.Fundable{}, err
	}
	return f, nil
}

func uniqueMilestones(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if seen[m] {
			return nil, domain.Reject("milestone", domain.ErrDuplicateAction, "milestone %q listed twice", m)
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

type ContributeOptions struct {
	Project     string
	Contributor string
	Amount      float64
	Anonymous   bool
	Message     string
}

// Contribute appends a contribution and applies its amount to the project in
// one unit. A fixed goal reached by the contribution moves the project to
// funded.
func (e Engine) Contribute(ctx context.Context, opts ContributeOptions) (domain.Fundable, domain.Contribution, error) {
	contributor, err := required("contribute", "contributor", opts.Contributor)
	if err != nil {
		return domain.Fundable{}, domain.Contribution{}, err
	}
	if opts.Project, err = required("contribute", "project", opts.Project); err != nil {
		return domain.Fundable{}, domain.Contribution{}, err
	}
	if !(opts.Amount > 0) || math.IsInf(opts.Amount, 0) {
		return domain.Fundable{}, domain.Contribution{}, domain.Reject("contribute", domain.ErrInvalidInput, "amount must be positive")
	}
	var (
		snapshot domain.Fundable
		record   domain.Contribution
	)
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventContribute, AggregateKind: domain.AggregateFundable, AggregateID: opts.Project, ActorID: contributor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			f, err := e.Repo.GetFundable(ctx, tx, opts.Project)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "contribute", "project", opts.Project)
			}
			after := f
			after.RaisedAmount += opts.Amount
			after.ContributorCount++
			next, err := fsm.Fundables.Apply(f.Status, fsm.FundableContribute, fsm.FundableContext{Actor: contributor, Fundable: after})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			now := e.stamp()
			record = domain.Contribution{
				ID: newID(), Fundable: f.ID, Contributor: contributor, Amount: opts.Amount,
				Anonymous: opts.Anonymous, Message: opts.Message, CreatedAt: now,
			}
			if err := e.Repo.InsertContribution(ctx, tx, record); err != nil {
				return domain.LedgerEntry{}, err
			}
			if err := e.Repo.ApplyContribution(ctx, tx, f.ID, f.Version, opts.Amount, next, now); err != nil {
				return domain.LedgerEntry{}, err
			}
			snapshot, err = e.Repo.GetFundable(ctx, tx, f.ID)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			payload := map[string]any{"amount": opts.Amount, "raised_amount": snapshot.RaisedAmount}
			if next != f.Status {
				payload["status"] = string(next)
			}
			return domain.LedgerEntry{RecordID: record.ID, Payload: payload}, nil
		})
	if err != nil {
		return domain.Fundable{}, domain.Contribution{}, err
	}
	return snapshot, record, nil
}

// transitionProject runs a lifecycle event that only changes status.
func (e Engine) transitionProject(ctx context.Context, op string, kind domain.EventKind, event fsm.FundableEvent, actor, id string) (domain.Fundable, error) {
	actor, err := required(op, "actor", actor)
	if err != nil {
		return domain.Fundable{}, err
	}
	if id, err = required(op, "project", id); err != nil {
		return domain.Fundable{}, err
	}
	moderator, err := e.isModerator(ctx, actor)
	if err != nil {
		return domain.Fundable{}, err
	}
	var snapshot domain.Fundable
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: kind, AggregateKind: domain.AggregateFundable, AggregateID: id, ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			f, err := e.Repo.GetFundable(ctx, tx, id)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, op, "project", id)
			}
			next, err := fsm.Fundables.Apply(f.Status, event, fsm.FundableContext{Actor: actor, Moderator: moderator, Fundable: f})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			if err := e.Repo.UpdateFundableStatus(ctx, tx, id, f.Version, next, e.stamp()); err != nil {
				return domain.LedgerEntry{}, err
			}
			snapshot, err = e.Repo.GetFundable(ctx, tx, id)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{Payload: map[string]any{"from": string(f.Status), "to": string(next)}}, nil
		})
	if err != nil {
		return domain.Fundable{}, err
	}
	return snapshot, nil
}

func (e Engine) ApproveProject(ctx context.Context, moderator, id string) (domain.Fundable, error) {
	return e.transitionProject(ctx, "approve", domain.EventApprove, fsm.FundableApprove, moderator, id)
}

func (e Engine) StartProject(ctx context.Context, owner, id string) (domain.Fundable, error) {
	return e.transitionProject(ctx, "start", domain.EventStart, fsm.FundableStart, owner, id)
}

func (e Engine) CompleteProject(ctx context.Context, owner, id string) (domain.Fundable, error) {
	return e.transitionProject(ctx, "complete", domain.EventComplete, fsm.FundableComplete, owner, id)
}

func (e Engine) CancelProject(ctx context.Context, actor, id string) (domain.Fundable, error) {
	return e.transitionProject(ctx, "cancel", domain.EventCancel, fsm.FundableCancel, actor, id)
}

// AddMilestone appends a uniquely named milestone to an open project.
func (e Engine) AddMilestone(ctx context.Context, owner, id, name string) (domain.Fundable, error) {
	name, err := required("milestone", "name", name)
	if err != nil {
		return domain.Fundable{}, err
	}
	return e.milestone(ctx, domain.EventAddMilestone, fsm.FundableAddMilestone, owner, id, name, func(ctx context.Context, tx *sql.Tx, f domain.Fundable) error {
		if f.HasMilestone(name) {
			return domain.Reject("milestone", domain.ErrDuplicateAction, "milestone %q already exists", name)
		}
		return e.Repo.AppendMilestone(ctx, tx, f.ID, name)
	})
}

// CompleteMilestone marks one of the project's milestones done. This is the
// owner's project update.
func (e Engine) CompleteMilestone(ctx context.Context, owner, id, name string) (domain.Fundable, error) {
	name, err := required("milestone", "name", name)
	if err != nil {
		return domain.Fundable{}, err
	}
	return e.milestone(ctx, domain.EventCompleteMilestone, fsm.FundableCompleteMilestone, owner, id, name, func(ctx context.Context, tx *sql.Tx, f domain.Fundable) error {
		if !f.HasMilestone(name) {
			return domain.NotFound("milestone", "milestone", name)
		}
		if f.MilestoneCompleted(name) {
			return domain.Reject("milestone", domain.ErrDuplicateAction, "milestone %q already completed", name)
		}
		return e.Repo.CompleteMilestone(ctx, tx, f.ID, name, e.stamp())
	})
}

func (e Engine) milestone(ctx context.Context, kind domain.EventKind, event fsm.FundableEvent, owner, id, name string, apply func(context.Context, *sql.Tx, domain.Fundable) error) (domain.Fundable, error) {
	owner, err := required("milestone", "owner", owner)
	if err != nil {
		return domain.Fundable{}, err
	}
	if id, err = required("milestone", "project", id); err != nil {
		return domain.Fundable{}, err
	}
	var snapshot domain.Fundable
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: kind, AggregateKind: domain.AggregateFundable, AggregateID: id, ActorID: owner},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			f, err := e.Repo.GetFundable(ctx, tx, id)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "milestone", "project", id)
			}
			if _, err := fsm.Fundables.Apply(f.Status, event, fsm.FundableContext{Actor: owner, Fundable: f}); err != nil {
				return domain.LedgerEntry{}, err
			}
			if err := apply(ctx, tx, f); err != nil {
				return domain.LedgerEntry{}, err
			}
			if err := e.Repo.TouchFundable(ctx, tx, id, f.Version, e.stamp()); err != nil {
				return domain.LedgerEntry{}, err
			}
			snapshot, err = e.Repo.GetFundable(ctx, tx, id)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{Payload: map[string]any{"milestone": name}}, nil
		})
	if err != nil {
		return domain.Fundable{}, err
	}
	return snapshot, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Fundable, error) {
	f, err := e.Repo.GetFundable(ctx, nil, id)
	return f, notFound(err, "project", "project", id)
}

func (e Engine) ListProjects(ctx context.Context, f repo.FundableFilter) ([]domain.Fundable, error) {
	return e.Repo.ListFundables(ctx, f)
}

func (e Engine) MyContributions(ctx context.Context, actor string) ([]domain.Contribution, error) {
	return e.Repo.ContributionsByContributor(ctx, actor)
}

// ProjectContributions lists a project's contributions. Anonymous records
// keep their contributor; masking is the presenter's job.
func (e Engine) ProjectContributions(ctx context.Context, id string) ([]domain.Contribution, error) {
	if _, err := e.GetProject(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ContributionsByFundable(ctx, id)
}
