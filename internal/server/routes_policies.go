package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/fsm"
)

type policyPath struct {
	PolicyID string `path:"policy_id"`
}

func registerPolicies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-policy",
		Method:        http.MethodPost,
		Path:          "/policies",
		Summary:       "Draft a policy",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body CreatePolicyRequest `json:"body"`
	}) (*out[engine.PolicyResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CreatePolicy(ctx, actorID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-policies",
		Method:      http.MethodGet,
		Path:        "/policies",
		Summary:     "List policies",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,open_for_feedback,under_review,approved,implemented,rejected"`
		Limit  int    `query:"limit" default:"50"`
	}) (*out[[]domain.Votable], error) {
		items, err := e.ListPolicies(ctx, domain.VotableStatus(input.Status), normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-policy",
		Method:      http.MethodGet,
		Path:        "/policies/{policy_id}",
		Summary:     "Get a policy with its vote counters",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *policyPath) (*out[domain.Votable], error) {
		v, err := e.GetPolicy(ctx, input.PolicyID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-policy",
		Method:      http.MethodPost,
		Path:        "/policies/{policy_id}/transitions",
		Summary:     "Move a policy through its lifecycle",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *struct {
		PolicyID string                  `path:"policy_id"`
		Body     PolicyTransitionRequest `json:"body"`
	}) (*out[domain.Votable], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.TransitionPolicy(ctx, actorID, input.PolicyID, fsm.VotableEvent(input.Body.Event))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote",
		Method:      http.MethodPut,
		Path:        "/policies/{policy_id}/vote",
		Summary:     "Cast or change the current actor's vote",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *struct {
		PolicyID string      `path:"policy_id"`
		Body     VoteRequest `json:"body"`
	}) (*out[engine.VoteResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Vote(ctx, actorID, input.PolicyID, domain.VoteType(input.Body.VoteType), input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-votes",
		Method:      http.MethodGet,
		Path:        "/policies/{policy_id}/votes",
		Summary:     "List votes on a policy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *policyPath) (*out[[]domain.Vote], error) {
		items, err := e.PolicyVotes(ctx, input.PolicyID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-feedback",
		Method:        http.MethodPost,
		Path:          "/policies/{policy_id}/feedback",
		Summary:       "Comment on a policy",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		PolicyID string          `path:"policy_id"`
		Body     FeedbackRequest `json:"body"`
	}) (*out[engine.FeedbackResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Feedback(ctx, actorID, input.PolicyID, input.Body.Kind, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-feedback",
		Method:      http.MethodGet,
		Path:        "/policies/{policy_id}/feedback",
		Summary:     "List feedback on a policy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *policyPath) (*out[[]domain.Feedback], error) {
		items, err := e.PolicyFeedback(ctx, input.PolicyID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

func registerParticipation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-participation",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/participation",
		Summary:     "Participation points and tier",
	}, func(ctx context.Context, input *actorPath) (*out[domain.ParticipationAccount], error) {
		acct, err := e.Participation(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		if acct.PerActivity == nil {
			acct.PerActivity = map[domain.ActivityKind]int{}
		}
		return reply(acct), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leaderboard",
		Method:      http.MethodGet,
		Path:        "/leaderboard",
		Summary:     "Top participants by points",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"10"`
	}) (*out[[]domain.ParticipationAccount], error) {
		items, err := e.Leaderboard(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "credit-points",
		Method:        http.MethodPost,
		Path:          "/participation/credits",
		Summary:       "Credit points for an activity recorded elsewhere (moderators)",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body CreditRequest `json:"body"`
	}) (*out[domain.ParticipationAccount], error) {
		if _, err := requireModerator(ctx, e); err != nil {
			return nil, handleError(err)
		}
		activity := domain.ActivityKind(input.Body.Activity)
		var (
			acct domain.ParticipationAccount
			err  error
		)
		if input.Body.Points > 0 {
			acct, err = e.Credit(ctx, input.Body.ActorID, activity, input.Body.Points)
		} else {
			acct, err = e.CreditActivity(ctx, input.Body.ActorID, activity)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return reply(acct), nil
	})
}
