package session

import (
	"context"

	"livequiz/internal/domain"
)

// Ledger records answer submissions so that none is sent twice, including
// across reconnects and process restarts when backed by a shared store.
type Ledger interface {
	// Reserve claims the slot before sending. false means it is already taken.
	Reserve(ctx context.Context, key domain.SubmissionKey) (bool, error)
	// Confirm stores the acknowledged submission.
	Confirm(ctx context.Context, key domain.SubmissionKey, sub domain.AnswerSubmission) error
	// Release frees a reservation whose request failed.
	Release(ctx context.Context, key domain.SubmissionKey) error
	// Get returns the confirmed submission, if any.
	Get(ctx context.Context, key domain.SubmissionKey) (*domain.AnswerSubmission, error)
}

// Journal appends recorded frames for later replay.
type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
}
