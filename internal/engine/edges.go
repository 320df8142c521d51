package engine

import (
	"context"
	"database/sql"

	"tally/internal/auth"
	"tally/internal/domain"
	"tally/internal/fsm"
	"tally/internal/guard"
	"tally/internal/ledger"
	"tally/internal/repo"
)

// Connect records a pending connection request from actor to target. A
// second request for the same unordered pair, in either direction, is a
// DuplicateAction naming the existing edge.
func (e Engine) Connect(ctx context.Context, actor, target, message string) (domain.Edge, error) {
	actor, err := required("connect", "actor", actor)
	if err != nil {
		return domain.Edge{}, err
	}
	target, err = required("connect", "target", target)
	if err != nil {
		return domain.Edge{}, err
	}
	if actor == target {
		return domain.Edge{}, domain.Reject("connect", domain.ErrInvalidInput, "cannot connect to yourself")
	}
	key := guard.EdgeKey(actor, target)
	var edge domain.Edge
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventConnect, AggregateKind: domain.AggregateEdge, AggregateID: key.Value, ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			id := newID()
			out, err := e.Guard.Reserve(ctx, tx, key, id)
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			if !out.Acquired {
				return domain.LedgerEntry{}, domain.Duplicate("connect", out.Existing)
			}
			status, err := fsm.Edges.Apply(fsm.EdgeNone, fsm.EdgeConnect, fsm.EdgeContext{Actor: actor, Initiator: actor})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			edge = domain.Edge{
				ID: id, PartyA: actor, PartyB: target, Initiator: actor, Status: status,
				Message: message, Version: 1, CreatedAt: e.stamp(),
			}
			if err := e.Repo.InsertEdge(ctx, tx, edge); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{AggregateID: id, RecordID: id, Payload: map[string]any{"target": target, "status": string(status)}}, nil
		})
	if err != nil {
		return domain.Edge{}, err
	}
	return edge, nil
}

// AcceptConnection moves a pending edge to accepted. Only the recipient may
// accept; the initiator or a repeat accept is an InvalidTransition.
func (e Engine) AcceptConnection(ctx context.Context, actor, edgeID string) (domain.Edge, error) {
	actor, err := required("accept", "actor", actor)
	if err != nil {
		return domain.Edge{}, err
	}
	current, err := e.Repo.GetEdge(ctx, nil, edgeID)
	if err != nil {
		return domain.Edge{}, notFound(err, "accept", "connection", edgeID)
	}
	if actor != current.PartyA && actor != current.PartyB {
		return domain.Edge{}, domain.Reject("accept", auth.ForbiddenError{Actor: actor, Permission: auth.PermEdgeAccept}, "not a party to this connection")
	}
	var edge domain.Edge
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventAccept, AggregateKind: domain.AggregateEdge, AggregateID: repo.PairKey(current.PartyA, current.PartyB), ActorID: actor},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			cur, err := e.Repo.GetEdge(ctx, tx, edgeID)
			if err != nil {
				return domain.LedgerEntry{}, notFound(err, "accept", "connection", edgeID)
			}
			next, err := fsm.Edges.Apply(cur.Status, fsm.EdgeAccept, fsm.EdgeContext{Actor: actor, Initiator: cur.Initiator})
			if err != nil {
				return domain.LedgerEntry{}, err
			}
			at := e.stamp()
			if err := e.Repo.AcceptEdge(ctx, tx, cur.ID, cur.Version, at); err != nil {
				return domain.LedgerEntry{}, err
			}
			cur.Status = next
			cur.AcceptedAt = &at
			cur.Version++
			edge = cur
			return domain.LedgerEntry{AggregateID: cur.ID, RecordID: cur.ID, Payload: map[string]any{"initiator": cur.Initiator}}, nil
		})
	if err != nil {
		return domain.Edge{}, err
	}
	return edge, nil
}

func (e Engine) GetConnection(ctx context.Context, id string) (domain.Edge, error) {
	edge, err := e.Repo.GetEdge(ctx, nil, id)
	return edge, notFound(err, "connection", "connection", id)
}

func (e Engine) PendingRequests(ctx context.Context, actor string) ([]domain.Edge, error) {
	return e.Repo.PendingRequests(ctx, actor)
}

func (e Engine) SentRequests(ctx context.Context, actor string) ([]domain.Edge, error) {
	return e.Repo.SentRequests(ctx, actor)
}

func (e Engine) Connections(ctx context.Context, actor string) ([]domain.Edge, error) {
	return e.Repo.Connections(ctx, actor)
}

func (e Engine) AreConnected(ctx context.Context, a, b string) (bool, error) {
	return e.Directory.AreConnected(ctx, a, b)
}
