package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/scoring"
)

type jobPath struct {
	JobID string `path:"job_id"`
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create an organization owned by the current actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*out[domain.Organization], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrg(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-org-member",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/members",
		Summary:     "Add a member to an organization",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  AddMemberRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddOrgMember(ctx, actorID, input.OrgID, input.Body.ActorID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/jobs",
		Summary:       "Post a job",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  CreateJobRequest `json:"body"`
	}) (*out[domain.Job], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.CreateJob(ctx, actorID, input.OrgID, input.Body.Title, input.Body.RequiredSkills)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(j), nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
	}, func(ctx context.Context, input *struct {
		OrgID string `query:"org_id"`
	}) (*out[[]domain.Job], error) {
		items, err := e.ListJobs(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get a job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*out[domain.Job], error) {
		j, err := e.GetJob(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(j), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/applications",
		Summary:       "Apply to a job",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		JobID string       `path:"job_id"`
		Body  ApplyRequest `json:"body"`
	}) (*out[domain.Application], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Apply(ctx, actorID, input.JobID, input.Body.CoverLetter)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-job-applications",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/applications",
		Summary:     "Applications to a job (owning organization only)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*out[[]domain.Application], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.JobApplications(ctx, actorID, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rank-candidates",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/candidates",
		Summary:     "Applicants ranked by skill match",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *jobPath) (*out[[]scoring.Match], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.RankCandidates(ctx, actorID, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-application",
		Method:      http.MethodPatch,
		Path:        "/applications/{application_id}",
		Summary:     "Set an application's status",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *struct {
		ApplicationID string                   `path:"application_id"`
		Body          ApplicationStatusRequest `json:"body"`
	}) (*out[domain.Application], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateApplicationStatus(ctx, actorID, input.ApplicationID, domain.ApplicationStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-applications",
		Method:      http.MethodGet,
		Path:        "/me/applications",
		Summary:     "Applications made by the current actor",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Application], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MyApplications(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "match-jobs",
		Method:      http.MethodGet,
		Path:        "/me/job-matches",
		Summary:     "Jobs ranked by match with the current actor's skills",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*out[[]scoring.Match], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MatchJobsForActor(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}
