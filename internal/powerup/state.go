// Package powerup tracks limited-use modifiers and their effects on the
// current question.
package powerup

import (
	"errors"
	"sort"
)

// Type names a power-up as it appears on the wire.
type Type string

const (
	FiftyFifty   Type = "50-50"
	TimeFreeze   Type = "time-freeze"
	DoublePoints Type = "double-points"
)

// Types lists the known power-ups.
func Types() []Type { return []Type{FiftyFifty, TimeFreeze, DoublePoints} }

// Valid reports whether t is a known power-up.
func (t Type) Valid() bool {
	switch t {
	case FiftyFifty, TimeFreeze, DoublePoints:
		return true
	}
	return false
}

var (
	ErrUnknownType   = errors.New("unknown power-up")
	ErrUsedThisRound = errors.New("power-up already used this question")
	ErrNoneRemaining = errors.New("no uses remaining")
)

// State is an immutable view of counts and per-question effects.
type State struct {
	counts   map[Type]int
	active   map[Type]bool
	question int
	hidden   []int
}

// NewState seeds counts, usually from the participant record in the join ack.
func NewState(counts map[string]int) State {
	s := State{counts: make(map[Type]int, len(counts)), question: -1}
	for k, v := range counts {
		if t := Type(k); t.Valid() && v > 0 {
			s.counts[t] = v
		}
	}
	return s
}

// Remaining is the count left for t.
func (s State) Remaining(t Type) int { return s.counts[t] }

// Active reports whether t was activated for the current question.
func (s State) Active(t Type) bool { return s.active[t] }

// Question is the index the active flags belong to.
func (s State) Question() int { return s.question }

// CanUse checks the local preconditions. The server has the final say.
func (s State) CanUse(t Type) error {
	switch {
	case !t.Valid():
		return ErrUnknownType
	case s.active[t]:
		return ErrUsedThisRound
	case s.counts[t] <= 0:
		return ErrNoneRemaining
	}
	return nil
}

// Consume records a successful activation: one use fewer, flag set, effect stored.
func (s State) Consume(a Activation) State {
	next := s.spend(a.Type)
	next.active[a.Type] = true
	if a.Type == FiftyFifty {
		next.hidden = append([]int(nil), a.Hidden...)
	}
	return next
}

func (s State) spend(t Type) State {
	next := s.clone()
	if next.counts[t] > 0 {
		next.counts[t]--
	}
	return next
}

// ResetQuestion clears per-question effects when question idx starts.
// Counts carry over.
func (s State) ResetQuestion(idx int) State {
	if idx == s.question {
		return s
	}
	next := s.clone()
	next.active = map[Type]bool{}
	next.hidden = nil
	next.question = idx
	return next
}

// Hidden returns the option indices removed by 50-50 for this question.
func (s State) Hidden() []int { return append([]int(nil), s.hidden...) }

// IsHidden reports whether option i is hidden.
func (s State) IsHidden(i int) bool {
	for _, h := range s.hidden {
		if h == i {
			return true
		}
	}
	return false
}

// Multiplier is the cosmetic points multiplier for the current question.
func (s State) Multiplier() int {
	if s.active[DoublePoints] {
		return 2
	}
	return 1
}

// Counts returns remaining uses keyed by wire name.
func (s State) Counts() map[string]int {
	out := make(map[string]int, len(s.counts))
	for t, n := range s.counts {
		out[string(t)] = n
	}
	return out
}

// ActiveTypes lists activations for the current question in stable order.
func (s State) ActiveTypes() []Type {
	var out []Type
	for t, on := range s.active {
		if on {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) clone() State {
	next := State{
		counts:   make(map[Type]int, len(s.counts)),
		active:   make(map[Type]bool, len(s.active)),
		question: s.question,
		hidden:   s.hidden,
	}
	for k, v := range s.counts {
		next.counts[k] = v
	}
	for k, v := range s.active {
		next.active[k] = v
	}
	return next
}
