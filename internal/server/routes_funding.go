package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/repo"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Propose a project for funding",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body ProposeProjectRequest `json:"body"`
	}) (*out[domain.Fundable], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.ProposeProject(ctx, engine.ProposeOptions{
			Owner:      actorID,
			Title:      input.Body.Title,
			GoalAmount: input.Body.GoalAmount,
			GoalType:   domain.GoalType(input.Body.GoalType),
			Milestones: input.Body.Milestones,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		Owner  string `query:"owner"`
		Status string `query:"status" enum:"pending_approval,active,funded,in_progress,completed,cancelled"`
		Limit  int    `query:"limit" default:"50"`
	}) (*out[[]domain.Fundable], error) {
		items, err := e.ListProjects(ctx, repo.FundableFilter{
			Owner:  input.Owner,
			Status: domain.FundableStatus(input.Status),
			Limit:  normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*out[domain.Fundable], error) {
		f, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/transitions",
		Summary:     "Approve, start, complete or cancel a project",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Body      ProjectTransitionRequest `json:"body"`
	}) (*out[domain.Fundable], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var fn func(context.Context, string, string) (domain.Fundable, error)
		switch input.Body.Action {
		case "approve":
			fn = e.ApproveProject
		case "start":
			fn = e.StartProject
		case "complete":
			fn = e.CompleteProject
		case "cancel":
			fn = e.CancelProject
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown action", map[string]any{"action": input.Body.Action})
		}
		f, err := fn(ctx, actorID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "contribute",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/contributions",
		Summary:       "Contribute to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      ContributeRequest `json:"body"`
	}) (*out[ContributeResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, c, err := e.Contribute(ctx, engine.ContributeOptions{
			Project:     input.ProjectID,
			Contributor: actorID,
			Amount:      input.Body.Amount,
			Anonymous:   input.Body.Anonymous,
			Message:     input.Body.Message,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ContributeResponse{Project: f, Contribution: contributionResponse(c, actorID)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-contributions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/contributions",
		Summary:     "List a project's contributions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*out[[]ContributionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ProjectContributions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapContributions(items, actorID)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-contributions",
		Method:      http.MethodGet,
		Path:        "/me/contributions",
		Summary:     "Contributions made by the current actor",
	}, func(ctx context.Context, _ *struct{}) (*out[[]ContributionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MyContributions(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(mapContributions(items, actorID)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/milestones",
		Summary:       "Add a milestone",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      MilestoneRequest `json:"body"`
	}) (*out[domain.Fundable], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.AddMilestone(ctx, actorID, input.ProjectID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-milestone",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/milestones/{name}/complete",
		Summary:     "Post a project update completing a milestone",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Name      string `path:"name"`
	}) (*out[domain.Fundable], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.CompleteMilestone(ctx, actorID, input.ProjectID, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(f), nil
	})
}
