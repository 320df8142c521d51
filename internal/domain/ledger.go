package domain

// AggregateKind names the family an aggregate belongs to.
type AggregateKind string

const (
	AggregateEdge          AggregateKind = "edge"
	AggregateFundable      AggregateKind = "fundable"
	AggregateVotable       AggregateKind = "votable"
	AggregateEndorsement   AggregateKind = "endorsement"
	AggregateApplication   AggregateKind = "application"
	AggregateParticipation AggregateKind = "participation"
	AggregateConversation  AggregateKind = "conversation"
)

// EventKind names a ledger action.
type EventKind string

const (
	EventConnect           EventKind = "edge.connect"
	EventAccept            EventKind = "edge.accept"
	EventPropose           EventKind = "fundable.propose"
	EventApprove           EventKind = "fundable.approve"
	EventContribute        EventKind = "fundable.contribute"
	EventStart             EventKind = "fundable.start"
	EventComplete          EventKind = "fundable.complete"
	EventCancel            EventKind = "fundable.cancel"
	EventAddMilestone      EventKind = "fundable.milestone.add"
	EventCompleteMilestone EventKind = "fundable.milestone.complete"
	EventCreatePolicy      EventKind = "votable.create"
	EventOpenPolicy        EventKind = "votable.open"
	EventReviewPolicy      EventKind = "votable.review"
	EventApprovePolicy     EventKind = "votable.approve"
	EventRejectPolicy      EventKind = "votable.reject"
	EventImplementPolicy   EventKind = "votable.implement"
	EventVote              EventKind = "votable.vote"
	EventChangeVote        EventKind = "votable.vote.change"
	EventFeedback          EventKind = "votable.feedback"
	EventEndorse           EventKind = "endorsement.create"
	EventApply             EventKind = "application.create"
	EventApplicationStatus EventKind = "application.status"
	EventCredit            EventKind = "participation.credit"
	EventMessage           EventKind = "conversation.message"
)

// LedgerEntry is the immutable journal row written with every command.
type LedgerEntry struct {
	ID            int64          `json:"id"`
	Kind          EventKind      `json:"kind"`
	AggregateKind AggregateKind  `json:"aggregate_kind"`
	AggregateID   string         `json:"aggregate_id"`
	RecordID      string         `json:"record_id,omitempty"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	TS            string         `json:"ts" format:"date-time"`
}

// Event is a journal row as stored.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	AggregateKind string `json:"aggregate_kind"`
	AggregateID   string `json:"aggregate_id"`
	RecordID      string `json:"record_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}
