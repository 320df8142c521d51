package engine

import (
	"context"
	"database/sql"
	"strings"

	"tally/internal/auth"
	"tally/internal/domain"
	"tally/internal/guard"
	"tally/internal/ledger"
)

// SendMessage delivers content from sender to recipient. Only actors sharing
// an accepted connection may message each other.
func (e Engine) SendMessage(ctx context.Context, sender, recipient, content string) (domain.Message, error) {
	sender, err := required("send message", "sender", sender)
	if err != nil {
		return domain.Message{}, err
	}
	recipient, err = required("send message", "recipient", recipient)
	if err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.Reject("send message", domain.ErrInvalidInput, "content is required")
	}
	if sender == recipient {
		return domain.Message{}, domain.Reject("send message", domain.ErrInvalidInput, "cannot message yourself")
	}
	connected, err := e.Directory.AreConnected(ctx, sender, recipient)
	if err != nil {
		return domain.Message{}, err
	}
	if !connected {
		return domain.Message{}, domain.Reject("send message", auth.ForbiddenError{Actor: sender, Permission: auth.PermMessage}, "you can only message connected actors")
	}
	pair := guard.EdgeKey(sender, recipient).Value
	var msg domain.Message
	_, err = e.Ledger.Record(ctx, ledger.Command{Kind: domain.EventMessage, AggregateKind: domain.AggregateConversation, AggregateID: pair, ActorID: sender},
		func(ctx context.Context, tx *sql.Tx) (domain.LedgerEntry, error) {
			msg = domain.Message{ID: newID(), Sender: sender, Recipient: recipient, Content: content, CreatedAt: e.stamp()}
			if err := e.Repo.InsertMessage(ctx, tx, msg); err != nil {
				return domain.LedgerEntry{}, err
			}
			return domain.LedgerEntry{RecordID: msg.ID, Payload: map[string]any{"recipient": recipient}}, nil
		})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Conversation returns the messages between actor and other, oldest first.
func (e Engine) Conversation(ctx context.Context, actor, other string) ([]domain.Message, error) {
	actor, err := required("conversation", "actor", actor)
	if err != nil {
		return nil, err
	}
	other, err = required("conversation", "other", other)
	if err != nil {
		return nil, err
	}
	return e.Repo.Conversation(ctx, actor, other)
}
