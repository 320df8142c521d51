package fsm

import (
	"tally/internal/domain"
)

// EdgeNone is the state of a pair with no edge yet.
const EdgeNone domain.EdgeStatus = ""

type EdgeEvent string

const (
	EdgeConnect EdgeEvent = "connect"
	EdgeAccept  EdgeEvent = "accept"
)

type EdgeContext struct {
	Actor     string
	Initiator string
}

// Edges: none -connect-> pending -accept(non-initiator)-> accepted.
var Edges = NewTable[domain.EdgeStatus, EdgeEvent, EdgeContext]("edge").
	On(EdgeConnect, []domain.EdgeStatus{EdgeNone}, Rule[domain.EdgeStatus, EdgeContext]{
		Next: To[domain.EdgeStatus, EdgeContext](domain.EdgePending),
	}).
	On(EdgeAccept, []domain.EdgeStatus{domain.EdgePending}, Rule[domain.EdgeStatus, EdgeContext]{
		Guard: func(_ domain.EdgeStatus, c EdgeContext) error {
			if c.Actor == c.Initiator {
				return domain.Reject("edge", domain.ErrInvalidTransition, "initiator cannot accept their own request")
			}
			return nil
		},
		Next: To[domain.EdgeStatus, EdgeContext](domain.EdgeAccepted),
	})

type FundableEvent string

const (
	FundableContribute        FundableEvent = "contribute"
	FundableApprove           FundableEvent = "approve"
	FundableStart             FundableEvent = "start"
	FundableComplete          FundableEvent = "complete"
	FundableCancel            FundableEvent = "cancel"
	FundableAddMilestone      FundableEvent = "add_milestone"
	FundableCompleteMilestone FundableEvent = "complete_milestone"
)

// FundableContext carries the snapshot after any numeric delta was applied.
type FundableContext struct {
	Actor     string
	Moderator bool
	Fundable  domain.Fundable
}

func (c FundableContext) owner() bool { return c.Actor == c.Fundable.Owner }

type fundableRule = Rule[domain.FundableStatus, FundableContext]

func ownerOnly(_ domain.FundableStatus, c FundableContext) error {
	if !c.owner() {
		return domain.Reject("fundable", domain.ErrUnauthorized, "only the owner may do this")
	}
	return nil
}

func fundedWhenGoalMet(from domain.FundableStatus, c FundableContext) domain.FundableStatus {
	f := c.Fundable
	if f.GoalType == domain.GoalFixed && f.GoalAmount > 0 && f.RaisedAmount >= f.GoalAmount {
		return domain.FundableFunded
	}
	return from
}

var openFundable = []domain.FundableStatus{
	domain.FundablePendingApproval, domain.FundableActive, domain.FundableFunded, domain.FundableInProgress,
}

// Fundables accepts contributions only while active or funded; lifecycle
// events come from the owner or, for approval and cancellation, a moderator.
var Fundables = func() *Table[domain.FundableStatus, FundableEvent, FundableContext] {
	t := NewTable[domain.FundableStatus, FundableEvent, FundableContext]("fundable")
	t.Miss = func(from domain.FundableStatus, ev FundableEvent) error {
		if ev == FundableContribute {
			return domain.Reject("fundable", domain.ErrInvalidState, "contributions not accepted while %s", from)
		}
		return domain.Reject("fundable", domain.ErrInvalidTransition, "%s not allowed from %q", ev, from)
	}
	t.On(FundableContribute, []domain.FundableStatus{domain.FundableActive, domain.FundableFunded}, fundableRule{
		Next: fundedWhenGoalMet,
	})
	t.On(FundableApprove, []domain.FundableStatus{domain.FundablePendingApproval}, fundableRule{
		Guard: func(_ domain.FundableStatus, c FundableContext) error {
			if !c.Moderator {
				return domain.Reject("fundable", domain.ErrUnauthorized, "approval requires a moderator")
			}
			return nil
		},
		Next: To[domain.FundableStatus, FundableContext](domain.FundableActive),
	})
	t.On(FundableStart, []domain.FundableStatus{domain.FundableFunded}, fundableRule{
		Guard: ownerOnly,
		Next:  To[domain.FundableStatus, FundableContext](domain.FundableInProgress),
	})
	t.On(FundableStart, []domain.FundableStatus{domain.FundableActive}, fundableRule{
		Guard: func(from domain.FundableStatus, c FundableContext) error {
			if err := ownerOnly(from, c); err != nil {
				return err
			}
			if c.Fundable.GoalType != domain.GoalFlexible {
				return domain.Reject("fundable", domain.ErrInvalidTransition, "fixed-goal project must be funded before it starts")
			}
			return nil
		},
		Next: To[domain.FundableStatus, FundableContext](domain.FundableInProgress),
	})
	t.On(FundableComplete, []domain.FundableStatus{domain.FundableInProgress}, fundableRule{
		Guard: ownerOnly,
		Next:  To[domain.FundableStatus, FundableContext](domain.FundableCompleted),
	})
	t.On(FundableCancel, openFundable, fundableRule{
		Guard: func(_ domain.FundableStatus, c FundableContext) error {
			if !c.owner() && !c.Moderator {
				return domain.Reject("fundable", domain.ErrUnauthorized, "only the owner or a moderator may cancel")
			}
			return nil
		},
		Next: To[domain.FundableStatus, FundableContext](domain.FundableCancelled),
	})
	t.On(FundableAddMilestone, openFundable, fundableRule{Guard: ownerOnly})
	t.On(FundableCompleteMilestone, openFundable, fundableRule{Guard: ownerOnly})
	return t
}()

type VotableEvent string

const (
	VotableVote      VotableEvent = "vote"
	VotableFeedback  VotableEvent = "feedback"
	VotableOpen      VotableEvent = "open"
	VotableReview    VotableEvent = "review"
	VotableApprove   VotableEvent = "approve"
	VotableReject    VotableEvent = "reject"
	VotableImplement VotableEvent = "implement"
)

type VotableContext struct {
	Actor     string
	Moderator bool
	Owner     string
}

type votableRule = Rule[domain.VotableStatus, VotableContext]

func moderatorOnly(_ domain.VotableStatus, c VotableContext) error {
	if !c.Moderator {
		return domain.Reject("votable", domain.ErrUnauthorized, "requires a moderator")
	}
	return nil
}

var inputWindow = []domain.VotableStatus{domain.VotableOpenForFeedback, domain.VotableUnderReview}

// Votables accepts votes and feedback inside the input window only.
var Votables = func() *Table[domain.VotableStatus, VotableEvent, VotableContext] {
	t := NewTable[domain.VotableStatus, VotableEvent, VotableContext]("votable")
	t.Miss = func(from domain.VotableStatus, ev VotableEvent) error {
		if ev == VotableVote || ev == VotableFeedback {
			return &domain.ActionError{Op: "votable", Kind: domain.ErrNotAcceptingInput, Detail: string(from)}
		}
		return domain.Reject("votable", domain.ErrInvalidTransition, "%s not allowed from %q", ev, from)
	}
	t.On(VotableVote, inputWindow, votableRule{})
	t.On(VotableFeedback, inputWindow, votableRule{})
	t.On(VotableOpen, []domain.VotableStatus{domain.VotableDraft}, votableRule{
		Guard: func(_ domain.VotableStatus, c VotableContext) error {
			if c.Actor != c.Owner && !c.Moderator {
				return domain.Reject("votable", domain.ErrUnauthorized, "only the owner or a moderator may open a draft")
			}
			return nil
		},
		Next: To[domain.VotableStatus, VotableContext](domain.VotableOpenForFeedback),
	})
	t.On(VotableReview, []domain.VotableStatus{domain.VotableOpenForFeedback}, votableRule{
		Guard: moderatorOnly,
		Next:  To[domain.VotableStatus, VotableContext](domain.VotableUnderReview),
	})
	t.On(VotableApprove, []domain.VotableStatus{domain.VotableUnderReview}, votableRule{
		Guard: moderatorOnly,
		Next:  To[domain.VotableStatus, VotableContext](domain.VotableApproved),
	})
	t.On(VotableReject, []domain.VotableStatus{domain.VotableUnderReview}, votableRule{
		Guard: moderatorOnly,
		Next:  To[domain.VotableStatus, VotableContext](domain.VotableRejected),
	})
	t.On(VotableImplement, []domain.VotableStatus{domain.VotableApproved}, votableRule{
		Guard: moderatorOnly,
		Next:  To[domain.VotableStatus, VotableContext](domain.VotableImplemented),
	})
	return t
}()

// ApplicationNone is the state before an application exists.
const ApplicationNone domain.ApplicationStatus = ""

type ApplicationEvent string

const (
	ApplicationCreate    ApplicationEvent = "create"
	ApplicationSetStatus ApplicationEvent = "set_status"
)

type ApplicationContext struct {
	OrgMember bool
	Target    domain.ApplicationStatus
}

var allApplicationStatuses = []domain.ApplicationStatus{
	domain.ApplicationApplied, domain.ApplicationReviewed, domain.ApplicationShortlisted,
	domain.ApplicationInterviewed, domain.ApplicationAccepted, domain.ApplicationRejected,
}

// Applications lets the owning organization move an application to any status.
var Applications = NewTable[domain.ApplicationStatus, ApplicationEvent, ApplicationContext]("application").
	On(ApplicationCreate, []domain.ApplicationStatus{ApplicationNone}, Rule[domain.ApplicationStatus, ApplicationContext]{
		Next: To[domain.ApplicationStatus, ApplicationContext](domain.ApplicationApplied),
	}).
	On(ApplicationSetStatus, allApplicationStatuses, Rule[domain.ApplicationStatus, ApplicationContext]{
		Guard: func(_ domain.ApplicationStatus, c ApplicationContext) error {
			if !c.OrgMember {
				return domain.Reject("application", domain.ErrUnauthorized, "only the job's organization may update applications")
			}
			if !c.Target.Valid() {
				return domain.Reject("application", domain.ErrInvalidInput, "unknown status %q", c.Target)
			}
			return nil
		},
		Next: func(_ domain.ApplicationStatus, c ApplicationContext) domain.ApplicationStatus { return c.Target },
	})
