package engine

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/sync/errgroup"

	"tally/internal/domain"
	"tally/internal/fsm"
	"tally/internal/guard"
	"tally/internal/ledger"
	"tally/internal/repo"
	"tally/internal/scoring"
)

// SetProfile replaces actor's skill set, normalized and deduplicated.
func (e Engine) SetProfile(ctx context.Context, actor, displayName string, skills []string) (domain.ActorProfile, error) {
	actor, err := required("profile", "actor", actor)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.UpsertProfile(ctx, tx, domain.ActorProfile{ID: actor, DisplayName: displayName, Skills: scoring.NormalizeSkills(skills)})
	if err != nil {
		return domain.ActorProfile{}, err
	}
	return p, tx.Commit()
}

func (e Engine) GetProfile(ctx context.Context, actor string) (domain.ActorProfile, error) {
	p, err := e.Repo.GetProfile(ctx, nil, actor)
	return p, notFound(err, "profile", "actor", actor)
}

// CreateOrg creates an organization with actor as its owner.
func (e Engine) CreateOrg(ctx context.Context, actor, name string) (domain.Organization, error) {
	actor, err := required("create org", "actor", actor)
	if err != nil {
		return domain.Organization{}, err
	}
	name, err = required("create org", "name", name)
	if err != nil {
		return domain.Organization{}, err
	}
	o := domain.Organization{ID: newID(), Name: name, CreatedAt: e.stamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrg(ctx, tx, o); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Repo.AddOrgMember(ctx, tx, o.ID, actor, repo.OrgRoleOwner); err != nil {
		return domain.Organization{}, err
	}
	return o, tx.Commit()
}

// AddOrgMember lets an existing member add another actor to the organization.
func (e Engine) AddOrgMember(ctx context.Context, actor, orgID, member, role string) error {
	member, err := required("add member", "member", member)
	if err != nil {
		return err
	}
	if _, err := e.Repo.GetOrg(ctx, nil, orgID); err != nil {
		return notFound(err, "add member", "organization", orgID)
	}
	if err := e.Auth.RequireOrgMember(ctx, orgID, actor); err != nil {
		return err
	}
	if role == "" {
		role = repo.OrgRoleMember
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddOrgMember(ctx, tx, orgID, member, role); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateJob posts a job for an organization the actor belongs to.
func (e Engine) CreateJob(ctx context.Context, actor, orgID, title string, skills []string) (domain.Job, error) {
	title, err := required("create job", "title", title)
	if err != nil {
		return domain.Job{}, err
	}
	if _, err := e.Repo.GetOrg(ctx, nil, orgID); err != nil {
		return domain.Job{}, notFound(err, "create job", "organization", orgID)
	}
	if err := e.Auth.RequireOrgMember(ctx, orgID, actor); err != nil {
		return domain.Job{}, err
	}
	j := domain.Job{ID: newID(), Org: orgID, Title: title, RequiredSkills: scoring.NormalizeSkills(skills), CreatedAt: e.stamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJob(ctx, tx, j); err != nil {
		return domain.Job{}, err
	}
	return j, tx.Commit()
}

func (e Engine) GetJob(ctx context.Context, id string) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, nil, id)
	return j, notFound(err, "job", "job", id)
}

func (e Engine) ListJobs(ctx context.Context, orgID string) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, orgID)
}

// Apply records applicant's application to a job, once per (job, applicant).
func (e Engine) Apply(ctx context.Context, applicant, jobID, coverLetter string) (domain.Application, error) {
	applicant, err := required("apply", "applicant", applicant)
	if err != nil {
		return domain.Application{}, err
	}
	if jobID, err = required("apply", "job", jobID); err != nil {
		return domain.Application{}, err
	}
	if _, err := e.Directory.JobOrg(ctx, jobID); err != nil {
		return domain.Application{}, notFound(err, "apply", "job", jobID)
	}
	key := guard.ApplicationKey(jobID, applicant)
	var app domain.Application
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventApply, AggregateKind: domain.AggregateApplication, AggregateID: key.Value, ActorID: applicant},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			id := newID()
			out, err := e.Guard.Reserve(ctx, tx, key, id)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			if !out.Acquired {
				return domain.LedgerEntry{}, domain.Duplicate("apply", out.Existing)
			}
			status, err := fsm.Applications.Apply(fsm.ApplicationNone, fsm.ApplicationCreate, fsm.ApplicationContext{})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			now := e.stamp()
			app = domain.Application{ID: id, Job: jobID, Applicant: applicant, Status: status, CoverLetter: coverLetter, Version: 1, CreatedAt: now, UpdatedAt: now}
			if err := e.Repo.InsertApplication(ctx, tx, app); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{AggregateID: id, RecordID: id, Payload: map[string]any{"job": jobID}}, nil
		})
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// UpdateApplicationStatus sets any status on an application. Only members of
// the job's owning organization may do so.
func (e Engine) UpdateApplicationStatus(ctx context.Context, actor, appID string, status domain.ApplicationStatus) (domain.Application, error) {
	actor, err := required("update application", "actor", actor)
	if err != nil {
		return domain.Application{}, err
	}
	current, err := e.Repo.GetApplication(ctx, nil, appID)
	if err != nil {
		return domain.Application{}, notFound(err, "update application", "application", appID)
	}
	orgID, err := e.Directory.JobOrg(ctx, current.Job)
	if err != nil {
		return domain.Application{}, notFound(err, "update application", "job", current.Job)
	}
	member, err := e.Directory.IsOrgMember(ctx, orgID, actor)
	if err != nil {
		return domain.Application{}, err
	}
	key := guard.ApplicationKey(current.Job, current.Applicant)
	var app domain.Application
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventApplicationStatus, AggregateKind: domain.AggregateApplication, AggregateID: key.Value, ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			a, err := e.Repo.GetApplication(ctx, tx, appID)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "update application", "application", appID)
			}
			next, err := fsm.Applications.Apply(a.Status, fsm.ApplicationSetStatus, fsm.ApplicationContext{OrgMember: member, Target: status})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			at := e.stamp()
			if err := e.Repo.UpdateApplicationStatus(ctx, tx, a.ID, a.Version, next, at); err != nil {
				return domain.LedgerEntry{}, err
			}
			from := a.Status
			a.Status, a.Version, a.UpdatedAt = next, a.Version+1, at
			app = a
			return domain.LedgerEntry{AggregateID: a.ID, RecordID: a.ID, Payload: map[string]any{"from": string(from), "to": string(next)}}, nil
		})
	if err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func (e Engine) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, nil, id)
	return a, notFound(err, "application", "application", id)
}

// JobApplications lists applications for a job; only the owning org may look.
func (e Engine) JobApplications(ctx context.Context, actor, jobID string) ([]domain.Application, error) {
	orgID, err := e.Directory.JobOrg(ctx, jobID)
	if err != nil {
		return nil, notFound(err, "applications", "job", jobID)
	}
	if err := e.Auth.RequireOrgMember(ctx, orgID, actor); err != nil {
		return nil, err
	}
	return e.Repo.ApplicationsForJob(ctx, jobID)
}

func (e Engine) MyApplications(ctx context.Context, actor string) ([]domain.Application, error) {
	return e.Repo.ApplicationsByApplicant(ctx, actor)
}

// MatchJobsForActor scores every job with required skills against actor's
// skill set, best first. Ties keep the order jobs were posted in.
func (e Engine) MatchJobsForActor(ctx context.Context, actor string) ([]scoring.Match, error) {
	skills, err := e.Directory.ActorSkills(ctx, actor)
	if err != nil {
		return nil, notFound(err, "match jobs", "actor", actor)
	}
	jobs, err := e.Repo.ListJobs(ctx, "")
	if err != nil {
		return nil, err
	}
	matches := make([]*scoring.Match, 0, len(jobs))
	for _, j := range jobs {
		score, err := scoring.JobMatchScore(skills, j.RequiredSkills)
		if errors.Is(err, scoring.ErrNoRequiredSkills) {
			continue
		}
		if err != nil {
			return nil, err
		}
		matches = append(matches, &scoring.Match{ID: j.ID, Score: score, Matched: scoring.Intersect(skills, j.RequiredSkills)})
	}
	return rank(matches), nil
}

// RankCandidates scores each applicant of a job against its required skills.
func (e Engine) RankCandidates(ctx context.Context, actor, jobID string) ([]scoring.Match, error) {
	job, err := e.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.RequiredSkills) == 0 {
		return nil, domain.Reject("rank candidates", domain.ErrInvalidInput, "%v", scoring.ErrNoRequiredSkills)
	}
	apps, err := e.JobApplications(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	matches := make([]*scoring.Match, len(apps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range apps {
		g.Go(func() error {
			skills, err := e.Directory.ActorSkills(gctx, a.Applicant)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			score, err := scoring.JobMatchScore(skills, job.RequiredSkills)
			if err != nil {
				return err
			}
			matches[i] = &scoring.Match{ID: a.Applicant, Score: score, Matched: scoring.Intersect(skills, job.RequiredSkills)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rank(matches), nil
}

func rank(in []*scoring.Match) []scoring.Match {
	out := make([]scoring.Match, 0, len(in))
	for _, m := range in {
		if m != nil {
			out = append(out, *m)
		}
	}
	return scoring.RankMatches(out)
}
