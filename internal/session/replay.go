package session

import (
	"fmt"

	"livequiz/internal/domain"
	"livequiz/internal/protocol"
)

// Replay folds a recorded event sequence from an initial state, collecting
// the events that were discarded.
func Replay(initial State, events []protocol.Event) (State, []error) {
	s := initial
	var discarded []error
	for _, ev := range events {
		next, _, err := Reduce(s, ev)
		if err != nil {
			discarded = append(discarded, err)
			continue
		}
		s = next
	}
	return s, discarded
}

// ReplayJournal rebuilds the state of a recorded session. Entries must be in
// sequence order. Recorded acks go through Join and Sync, frames through Reduce.
func ReplayJournal(role Role, entries []domain.JournalEntry) (State, []error) {
	s := NewState(role)
	var discarded []error
	for _, e := range entries {
		switch e.Type {
		case string(protocol.RequestJoinSession):
			ack, err := protocol.ParseAck(e.Payload)
			if err == nil {
				var joined protocol.JoinAck
				if joined, err = protocol.DecodeJoinAck(ack); err == nil {
					s, _ = Join(s, joined)
					continue
				}
			}
			discarded = append(discarded, fmt.Errorf("entry %d: %w", e.Seq, err))

		case string(protocol.RequestState):
			ack, err := protocol.ParseAck(e.Payload)
			if err == nil {
				var snap *protocol.QuestionSnapshot
				if snap, err = protocol.DecodeStateAck(ack); err == nil {
					if snap != nil {
						s, _ = Sync(s, *snap, s.Session.Status == domain.StatusPaused)
					}
					continue
				}
			}
			discarded = append(discarded, fmt.Errorf("entry %d: %w", e.Seq, err))

		default:
			ev, err := protocol.Decode(protocol.Frame{Type: e.Type, Payload: e.Payload})
			if err != nil {
				discarded = append(discarded, fmt.Errorf("entry %d: %w", e.Seq, err))
				continue
			}
			next, _, err := Reduce(s, ev)
			if err != nil {
				discarded = append(discarded, fmt.Errorf("entry %d: %w", e.Seq, err))
				continue
			}
			s = next
		}
	}
	return s, discarded
}
