package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestActionErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Duplicate("connect", "edge-1"))
	if !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("expected duplicate action, got %v", err)
	}
	holder, ok := ExistingHolder(err)
	if !ok || holder != "edge-1" {
		t.Fatalf("holder = %q, %v", holder, ok)
	}
	if IsInfrastructure(err) {
		t.Fatalf("domain error classified as infrastructure")
	}
}

func TestNotAcceptingInputIsInvalidState(t *testing.T) {
	err := &ActionError{Op: "vote", Kind: ErrNotAcceptingInput}
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state")
	}
	if !errors.Is(err, ErrNotAcceptingInput) {
		t.Fatalf("expected not accepting input")
	}
}

func TestInfrastructureClassification(t *testing.T) {
	if !IsInfrastructure(errors.New("disk I/O error")) {
		t.Fatalf("expected storage error to be infrastructure")
	}
	if IsInfrastructure(nil) {
		t.Fatalf("nil is not an error")
	}
}

func TestVotableCounters(t *testing.T) {
	v := Votable{SupportCount: 2, OpposeCount: 1, NeutralCount: 3}
	if v.TotalVotes() != 6 {
		t.Fatalf("total = %d", v.TotalVotes())
	}
	if v.CountFor(VoteOppose) != 1 || VoteOppose.Column() != "oppose_count" {
		t.Fatalf("oppose mapping broken")
	}
	if VoteType("maybe").Valid() {
		t.Fatalf("unknown vote type accepted")
	}
}
