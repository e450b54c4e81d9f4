package memory

import (
	"context"
	"sync"

	"livequiz/internal/domain"
)

// SubmissionLedger is an in-process session.Ledger. It survives reconnects
// but not a restart.
type SubmissionLedger struct {
	mu        sync.RWMutex
	reserved  map[domain.SubmissionKey]struct{}
	confirmed map[domain.SubmissionKey]domain.AnswerSubmission
}

func NewSubmissionLedger() *SubmissionLedger {
	return &SubmissionLedger{
		reserved:  make(map[domain.SubmissionKey]struct{}),
		confirmed: make(map[domain.SubmissionKey]domain.AnswerSubmission),
	}
}

func (l *SubmissionLedger) Reserve(_ context.Context, key domain.SubmissionKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reserved[key]; ok {
		return false, nil
	}
	if _, ok := l.confirmed[key]; ok {
		return false, nil
	}
	l.reserved[key] = struct{}{}
	return true, nil
}

func (l *SubmissionLedger) Confirm(_ context.Context, key domain.SubmissionKey, sub domain.AnswerSubmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, key)
	l.confirmed[key] = sub
	return nil
}

func (l *SubmissionLedger) Release(_ context.Context, key domain.SubmissionKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, key)
	return nil
}

func (l *SubmissionLedger) Get(_ context.Context, key domain.SubmissionKey) (*domain.AnswerSubmission, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sub, ok := l.confirmed[key]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// Forget drops every slot of a room once the session is over.
func (l *SubmissionLedger) Forget(roomCode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.reserved {
		if key.RoomCode == roomCode {
			delete(l.reserved, key)
		}
	}
	for key := range l.confirmed {
		if key.RoomCode == roomCode {
			delete(l.confirmed, key)
		}
	}
}
