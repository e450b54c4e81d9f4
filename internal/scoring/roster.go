package scoring

import "livequiz/internal/domain"

// Roster is the participant list: an authoritative base that only server
// events change, plus an overlay of kicks the host issued but the server has
// not confirmed yet. Every method returns a new value.
type Roster struct {
	base    []domain.Participant
	kicking map[string]struct{}
}

// NewRoster seeds the authoritative base, typically from a join ack.
func NewRoster(participants []domain.Participant) Roster {
	base := make([]domain.Participant, len(participants))
	copy(base, participants)
	return Roster{base: base}
}

// Reset replaces the base wholesale and reconciles pending kicks against it.
func (r Roster) Reset(participants []domain.Participant) Roster {
	next := NewRoster(participants)
	next.kicking = r.kicking
	return next.reconcile()
}

// Join adds or replaces a participant.
func (r Roster) Join(p domain.Participant) Roster {
	next := r.clone()
	for i := range next.base {
		if next.base[i].Key() == p.Key() {
			next.base[i] = p
			return next.reconcile()
		}
	}
	next.base = append(next.base, p)
	return next.reconcile()
}

// Remove drops a participant (disconnect or confirmed kick).
func (r Roster) Remove(userID, username string) Roster {
	key := domain.Participant{UserID: userID, Username: username}.Key()
	next := r.clone()
	out := next.base[:0]
	for _, p := range next.base {
		if p.Key() == key || (userID == "" && p.Username == username) {
			continue
		}
		out = append(out, p)
	}
	next.base = out
	return next.reconcile()
}

// SetReady mirrors a lobby ready toggle.
func (r Roster) SetReady(userID string, ready bool) Roster {
	next := r.clone()
	for i := range next.base {
		if next.base[i].UserID == userID {
			next.base[i].Ready = ready
		}
	}
	return next
}

// ApplyBoard copies authoritative scores from a leaderboard snapshot.
func (r Roster) ApplyBoard(b Board) Roster {
	next := r.clone()
	for i := range next.base {
		if e, ok := b.Entry(next.base[i].Key()); ok {
			next.base[i].Score = e.Score
			next.base[i].CorrectAnswers = e.CorrectAnswers
		}
	}
	return next
}

// MarkKicked hides a participant before the server confirms the kick.
func (r Roster) MarkKicked(userID string) Roster {
	next := r.clone()
	if next.kicking == nil {
		next.kicking = map[string]struct{}{}
	}
	next.kicking[userID] = struct{}{}
	return next
}

// RevertKick restores a participant whose kick was rejected.
func (r Roster) RevertKick(userID string) Roster {
	if _, ok := r.kicking[userID]; !ok {
		return r
	}
	next := r.clone()
	delete(next.kicking, userID)
	return next
}

// Pending reports whether a kick is awaiting confirmation.
func (r Roster) Pending(userID string) bool {
	_, ok := r.kicking[userID]
	return ok
}

// View is what the presentation shows: the base minus pending kicks.
func (r Roster) View() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.base))
	for _, p := range r.base {
		if _, hidden := r.kicking[p.UserID]; hidden && p.UserID != "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Authoritative returns the base without the overlay applied.
func (r Roster) Authoritative() []domain.Participant {
	out := make([]domain.Participant, len(r.base))
	copy(out, r.base)
	return out
}

// Get finds a participant in the base by key.
func (r Roster) Get(key string) (domain.Participant, bool) {
	for _, p := range r.base {
		if p.Key() == key {
			return p, true
		}
	}
	return domain.Participant{}, false
}

// Len counts visible participants.
func (r Roster) Len() int { return len(r.View()) }

func (r Roster) clone() Roster {
	next := Roster{base: make([]domain.Participant, len(r.base))}
	copy(next.base, r.base)
	if len(r.kicking) > 0 {
		next.kicking = make(map[string]struct{}, len(r.kicking))
		for k := range r.kicking {
			next.kicking[k] = struct{}{}
		}
	}
	return next
}

// reconcile drops overlay entries the base no longer contains.
func (r Roster) reconcile() Roster {
	if len(r.kicking) == 0 {
		return r
	}
	present := make(map[string]struct{}, len(r.base))
	for _, p := range r.base {
		present[p.UserID] = struct{}{}
	}
	kicking := make(map[string]struct{}, len(r.kicking))
	for id := range r.kicking {
		if _, ok := present[id]; ok {
			kicking[id] = struct{}{}
		}
	}
	r.kicking = kicking
	return r
}
