package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tally/internal/domain"
	"tally/internal/engine"
)

type edgePath struct {
	EdgeID string `path:"edge_id"`
}

type actorPath struct {
	ActorID string `path:"actor_id"`
}

func registerConnections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "connect",
		Method:        http.MethodPost,
		Path:          "/connections",
		Summary:       "Send a connection request",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body ConnectRequest `json:"body"`
	}) (*out[domain.Edge], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edge, err := e.Connect(ctx, actorID, input.Body.TargetID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(edge), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-connection",
		Method:      http.MethodPost,
		Path:        "/connections/{edge_id}/accept",
		Summary:     "Accept a pending connection request",
		Errors:      commandErrors,
	}, func(ctx context.Context, input *edgePath) (*out[domain.Edge], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edge, err := e.AcceptConnection(ctx, actorID, input.EdgeID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(edge), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-connection",
		Method:      http.MethodGet,
		Path:        "/connections/{edge_id}",
		Summary:     "Get a connection",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *edgePath) (*out[domain.Edge], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		edge, err := e.GetConnection(ctx, input.EdgeID)
		if err != nil {
			return nil, handleError(err)
		}
		if edge.PartyA != actorID && edge.PartyB != actorID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not a party to this connection", nil)
		}
		return reply(edge), nil
	})

	lists := []struct {
		id, path, summary string
		fn                func(context.Context, string) ([]domain.Edge, error)
	}{
		{"list-connections", "/me/connections", "Accepted connections", e.Connections},
		{"list-pending-requests", "/me/connections/pending", "Requests awaiting my acceptance", e.PendingRequests},
		{"list-sent-requests", "/me/connections/sent", "Requests I sent that are still pending", e.SentRequests},
	}
	for _, l := range lists {
		huma.Register(api, huma.Operation{
			OperationID: l.id,
			Method:      http.MethodGet,
			Path:        l.path,
			Summary:     l.summary,
		}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Edge], error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			items, err := l.fn(ctx, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(nonNilSlice(items)), nil
		})
	}
}

func registerEndorsements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "endorse",
		Method:        http.MethodPost,
		Path:          "/endorsements",
		Summary:       "Endorse a connection's skill",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body EndorseRequest `json:"body"`
	}) (*out[domain.Endorsement], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.Endorse(ctx, actorID, input.Body.SubjectID, input.Body.Skill, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(rec), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-endorsements",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/endorsements",
		Summary:     "Endorsements received by an actor",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
		Skill   string `query:"skill"`
	}) (*out[[]domain.Endorsement], error) {
		items, err := e.Endorsements(ctx, input.ActorID, input.Skill)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-profile",
		Method:      http.MethodPut,
		Path:        "/me/profile",
		Summary:     "Replace the current actor's profile and skills",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ProfileRequest `json:"body"`
	}) (*out[domain.ActorProfile], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetProfile(ctx, actorID, input.Body.DisplayName, input.Body.Skills)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/profile",
		Summary:     "Get an actor's profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actorPath) (*out[domain.ActorProfile], error) {
		p, err := e.GetProfile(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerMessages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Message a connected actor",
		DefaultStatus: http.StatusCreated,
		Errors:        commandErrors,
	}, func(ctx context.Context, input *struct {
		Body MessageRequest `json:"body"`
	}) (*out[domain.Message], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msg, err := e.SendMessage(ctx, actorID, input.Body.RecipientID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(msg), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/me/messages/{actor_id}",
		Summary:     "Messages exchanged with another actor",
	}, func(ctx context.Context, input *actorPath) (*out[[]domain.Message], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Conversation(ctx, actorID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}
