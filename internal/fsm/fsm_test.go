package fsm

import (
	"errors"
	"testing"

	"tally/internal/domain"
)

func TestEdgeTable(t *testing.T) {
	next, err := Edges.Apply(EdgeNone, EdgeConnect, EdgeContext{Actor: "a", Initiator: "a"})
	if err != nil || next != domain.EdgePending {
		t.Fatalf("connect: %v %v", next, err)
	}
	if _, err := Edges.Apply(domain.EdgePending, EdgeAccept, EdgeContext{Actor: "a", Initiator: "a"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("initiator accept should be invalid transition, got %v", err)
	}
	next, err = Edges.Apply(domain.EdgePending, EdgeAccept, EdgeContext{Actor: "b", Initiator: "a"})
	if err != nil || next != domain.EdgeAccepted {
		t.Fatalf("accept: %v %v", next, err)
	}
	if _, err := Edges.Apply(domain.EdgeAccepted, EdgeAccept, EdgeContext{Actor: "b", Initiator: "a"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("re-accept should be invalid transition, got %v", err)
	}
	if Edges.CanAccept(domain.EdgePending, EdgeConnect, EdgeContext{}) {
		t.Fatalf("connect on existing edge must be rejected")
	}
}

func TestFundableContributionGating(t *testing.T) {
	f := domain.Fundable{Owner: "o", GoalType: domain.GoalFixed, GoalAmount: 1000}
	for _, st := range []domain.FundableStatus{domain.FundablePendingApproval, domain.FundableInProgress, domain.FundableCompleted, domain.FundableCancelled} {
		f.Status = st
		if _, err := Fundables.Apply(st, FundableContribute, FundableContext{Actor: "x", Fundable: f}); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("contribute from %s: want invalid state, got %v", st, err)
		}
	}
	f.RaisedAmount = 999
	next, err := Fundables.Apply(domain.FundableActive, FundableContribute, FundableContext{Actor: "x", Fundable: f})
	if err != nil || next != domain.FundableActive {
		t.Fatalf("below goal: %v %v", next, err)
	}
	f.RaisedAmount = 1000
	next, _ = Fundables.Apply(domain.FundableActive, FundableContribute, FundableContext{Actor: "x", Fundable: f})
	if next != domain.FundableFunded {
		t.Fatalf("goal met should fund, got %s", next)
	}
	f.GoalType = domain.GoalFlexible
	f.RaisedAmount = 5000
	next, _ = Fundables.Apply(domain.FundableActive, FundableContribute, FundableContext{Actor: "x", Fundable: f})
	if next != domain.FundableActive {
		t.Fatalf("flexible goal never auto-funds, got %s", next)
	}
}

func TestFundableLifecycle(t *testing.T) {
	f := domain.Fundable{Owner: "o", GoalType: domain.GoalFixed}
	if _, err := Fundables.Apply(domain.FundablePendingApproval, FundableApprove, FundableContext{Actor: "o", Fundable: f}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("owner approving own project: %v", err)
	}
	next, err := Fundables.Apply(domain.FundablePendingApproval, FundableApprove, FundableContext{Actor: "m", Moderator: true, Fundable: f})
	if err != nil || next != domain.FundableActive {
		t.Fatalf("approve: %v %v", next, err)
	}
	if _, err := Fundables.Apply(domain.FundableActive, FundableStart, FundableContext{Actor: "o", Fundable: f}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("fixed goal start before funding: %v", err)
	}
	if _, err := Fundables.Apply(domain.FundableFunded, FundableStart, FundableContext{Actor: "x", Fundable: f}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-owner start: %v", err)
	}
	next, _ = Fundables.Apply(domain.FundableFunded, FundableStart, FundableContext{Actor: "o", Fundable: f})
	next, _ = Fundables.Apply(next, FundableComplete, FundableContext{Actor: "o", Fundable: f})
	if next != domain.FundableCompleted {
		t.Fatalf("expected completed, got %s", next)
	}
	if _, err := Fundables.Apply(domain.FundableCompleted, FundableAddMilestone, FundableContext{Actor: "o", Fundable: f}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("milestone on completed project: %v", err)
	}
	if _, err := Fundables.Apply(domain.FundableActive, FundableCompleteMilestone, FundableContext{Actor: "x", Fundable: f}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("milestone by non-owner: %v", err)
	}
}

func TestVotableInputWindow(t *testing.T) {
	for _, st := range []domain.VotableStatus{domain.VotableDraft, domain.VotableApproved, domain.VotableImplemented, domain.VotableRejected} {
		_, err := Votables.Apply(st, VotableVote, VotableContext{Actor: "v"})
		if !errors.Is(err, domain.ErrNotAcceptingInput) || !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("vote while %s: %v", st, err)
		}
	}
	for _, st := range []domain.VotableStatus{domain.VotableOpenForFeedback, domain.VotableUnderReview} {
		next, err := Votables.Apply(st, VotableFeedback, VotableContext{Actor: "v"})
		if err != nil || next != st {
			t.Fatalf("feedback while %s: %v %v", st, next, err)
		}
	}
	if _, err := Votables.Apply(domain.VotableOpenForFeedback, VotableReview, VotableContext{Actor: "o", Owner: "o"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("review without moderator: %v", err)
	}
	next, err := Votables.Apply(domain.VotableDraft, VotableOpen, VotableContext{Actor: "o", Owner: "o"})
	if err != nil || next != domain.VotableOpenForFeedback {
		t.Fatalf("owner opens draft: %v %v", next, err)
	}
}

func TestApplicationAnyStatusByOrg(t *testing.T) {
	next, err := Applications.Apply(domain.ApplicationApplied, ApplicationSetStatus, ApplicationContext{OrgMember: true, Target: domain.ApplicationAccepted})
	if err != nil || next != domain.ApplicationAccepted {
		t.Fatalf("jump to accepted: %v %v", next, err)
	}
	next, err = Applications.Apply(domain.ApplicationRejected, ApplicationSetStatus, ApplicationContext{OrgMember: true, Target: domain.ApplicationReviewed})
	if err != nil || next != domain.ApplicationReviewed {
		t.Fatalf("back to reviewed: %v %v", next, err)
	}
	if _, err := Applications.Apply(domain.ApplicationApplied, ApplicationSetStatus, ApplicationContext{Target: domain.ApplicationAccepted}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("outsider update: %v", err)
	}
	if _, err := Applications.Apply(domain.ApplicationApplied, ApplicationSetStatus, ApplicationContext{OrgMember: true, Target: "hired"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown target: %v", err)
	}
}

func TestEventsListsAcceptedEvents(t *testing.T) {
	got := Votables.Events(domain.VotableUnderReview)
	want := []VotableEvent{VotableApprove, VotableFeedback, VotableReject, VotableVote}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestDuplicateRulePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewTable[domain.EdgeStatus, EdgeEvent, EdgeContext]("dup").
		On(EdgeConnect, []domain.EdgeStatus{EdgeNone}, Rule[domain.EdgeStatus, EdgeContext]{}).
		On(EdgeConnect, []domain.EdgeStatus{EdgeNone}, Rule[domain.EdgeStatus, EdgeContext]{})
}
