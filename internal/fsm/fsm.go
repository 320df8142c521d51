// Package fsm drives aggregate lifecycles from explicit transition tables.
// Every mutation asks its table whether (state, event) is accepted before
// touching the store, so adding a state or event is a table edit.
package fsm

import (
	"fmt"
	"sort"

	"tally/internal/domain"
)

// Rule is one accepted (state, event) pair.
type Rule[S ~string, C any] struct {
	// Guard rejects the event for this actor or snapshot; nil accepts.
	Guard func(from S, c C) error
	// Next computes the resulting state; nil keeps the current state.
	Next func(from S, c C) S
}

type key[S ~string, E ~string] struct {
	from  S
	event E
}

// Table maps (state, event) to a Rule. Missing pairs are rejected by Miss.
type Table[S ~string, E ~string, C any] struct {
	Name  string
	rules map[key[S, E]]Rule[S, C]
	// Miss builds the error for a pair with no rule.
	Miss func(from S, event E) error
}

func NewTable[S ~string, E ~string, C any](name string) *Table[S, E, C] {
	t := &Table[S, E, C]{Name: name, rules: map[key[S, E]]Rule[S, C]{}}
	t.Miss = func(from S, event E) error {
		return domain.Reject(name, domain.ErrInvalidTransition, "%s not allowed from %q", event, from)
	}
	return t
}

// On registers rule for event from each of the given states.
func (t *Table[S, E, C]) On(event E, from []S, rule Rule[S, C]) *Table[S, E, C] {
	for _, s := range from {
		k := key[S, E]{from: s, event: event}
		if _, dup := t.rules[k]; dup {
			panic(fmt.Sprintf("fsm %s: duplicate rule %s from %q", t.Name, event, s))
		}
		t.rules[k] = rule
	}
	return t
}

// CanAccept reports whether event is accepted from state for c.
func (t *Table[S, E, C]) CanAccept(state S, event E, c C) bool {
	_, err := t.Apply(state, event, c)
	return err == nil
}

// Apply returns the state reached by event, or the rejection.
func (t *Table[S, E, C]) Apply(state S, event E, c C) (S, error) {
	rule, ok := t.rules[key[S, E]{from: state, event: event}]
	if !ok {
		return state, t.Miss(state, event)
	}
	if rule.Guard != nil {
		if err := rule.Guard(state, c); err != nil {
			return state, err
		}
	}
	if rule.Next == nil {
		return state, nil
	}
	return rule.Next(state, c), nil
}

// Events lists the events accepted from state, ignoring guards.
func (t *Table[S, E, C]) Events(state S) []E {
	var out []E
	for k := range t.rules {
		if k.from == state {
			out = append(out, k.event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// To is a Next func that always lands in s.
func To[S ~string, C any](s S) func(S, C) S {
	return func(S, C) S { return s }
}
