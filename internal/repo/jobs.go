package repo

import (
	"context"
	"database/sql"
	"errors"

	"tally/internal/domain"
)

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO jobs(id, org_id, title, created_at) VALUES (?,?,?,?)`, j.ID, j.Org, j.Title, j.CreatedAt); err != nil {
		return err
	}
	for i, s := range j.RequiredSkills {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO job_skills(job_id, skill, position) VALUES (?,?,?)`, j.ID, s, i); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, q Querier, id string) (domain.Job, error) {
	if q == nil {
		q = r.DB
	}
	var j domain.Job
	err := q.QueryRowContext(ctx, `SELECT id, org_id, title, created_at FROM jobs WHERE id=?`, id).Scan(&j.ID, &j.Org, &j.Title, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	j.RequiredSkills, err = r.listStrings(ctx, q, `SELECT skill FROM job_skills WHERE job_id=? ORDER BY position ASC`, id)
	return j, err
}

// JobOrg returns the organization that owns job.
func (r Repo) JobOrg(ctx context.Context, jobID string) (string, error) {
	var org string
	err := r.DB.QueryRowContext(ctx, `SELECT org_id FROM jobs WHERE id=?`, jobID).Scan(&org)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return org, err
}

// ListJobs lists jobs in insertion order, optionally for one org.
func (r Repo) ListJobs(ctx context.Context, orgID string) ([]domain.Job, error) {
	query := `SELECT id FROM jobs`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	ids, err := r.listIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		j, err := r.GetJob(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, nil
}

const applicationColumns = `id,job_id,applicant_id,status,COALESCE(cover_letter,''),version,created_at,updated_at`

func scanApplication(row interface{ Scan(...any) error }) (domain.Application, error) {
	var a domain.Application
	err := row.Scan(&a.ID, &a.Job, &a.Applicant, &a.Status, &a.CoverLetter, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(id,job_id,applicant_id,status,cover_letter,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Job, a.Applicant, string(a.Status), nullable(a.CoverLetter), a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetApplication(ctx context.Context, q Querier, id string) (domain.Application, error) {
	if q == nil {
		q = r.DB
	}
	return scanApplication(q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

func (r Repo) UpdateApplicationStatus(ctx context.Context, tx *sql.Tx, id string, version int64, status domain.ApplicationStatus, at string) error {
	return casResult(tx.ExecContext(ctx, `UPDATE applications SET status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(status), at, id, version))
}

func (r Repo) ApplicationsForJob(ctx context.Context, jobID string) ([]domain.Application, error) {
	return r.listApplications(ctx, `SELECT `+applicationColumns+` FROM applications WHERE job_id=? ORDER BY created_at ASC, rowid ASC`, jobID)
}

func (r Repo) ApplicationsByApplicant(ctx context.Context, actor string) ([]domain.Application, error) {
	return r.listApplications(ctx, `SELECT `+applicationColumns+` FROM applications WHERE applicant_id=? ORDER BY created_at DESC, id DESC`, actor)
}

func (r Repo) listApplications(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
