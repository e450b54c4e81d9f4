package powerup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
)

// Sender issues a request and waits for its single acknowledgement.
type Sender interface {
	Send(ctx context.Context, typ protocol.RequestType, payload any) (protocol.Ack, error)
}

// Request describes one activation attempt.
type Request struct {
	RoomCode      string
	Type          Type
	QuestionIndex int
	TotalOptions  int
	Selected      *int
}

// Activation is the effect of an acknowledged power-up.
type Activation struct {
	Type          Type
	QuestionIndex int
	Hidden        []int
	FreezeFor     time.Duration
}

// Manager owns the power-up state of one participant and performs the
// use-powerup exchange.
type Manager struct {
	sender    Sender
	freezeFor time.Duration

	mu       sync.Mutex
	state    State
	inFlight map[Type]bool
}

// NewManager builds a manager with the counts granted at join time.
func NewManager(sender Sender, counts map[string]int, freezeFor time.Duration) *Manager {
	if freezeFor <= 0 {
		freezeFor = 10 * time.Second
	}
	return &Manager{
		sender:    sender,
		freezeFor: freezeFor,
		state:     NewState(counts),
		inFlight:  map[Type]bool{},
	}
}

// State returns the current immutable view.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset replaces counts, e.g. after a resync.
func (m *Manager) Reset(counts map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.state.question
	m.state = NewState(counts)
	m.state.question = q
}

// ResetQuestion clears per-question effects for question idx.
func (m *Manager) ResetQuestion(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = m.state.ResetQuestion(idx)
}

// Use activates req.Type for the current question. The count is only
// decremented once the server acknowledges success; every failure leaves
// the state untouched.
func (m *Manager) Use(ctx context.Context, req Request) (Activation, error) {
	m.mu.Lock()
	if req.QuestionIndex != m.state.question {
		m.state = m.state.ResetQuestion(req.QuestionIndex)
	}
	if err := m.state.CanUse(req.Type); err != nil {
		m.mu.Unlock()
		return Activation{}, domain.Rejected(string(protocol.RequestUsePowerUp), err)
	}
	if m.inFlight[req.Type] {
		m.mu.Unlock()
		return Activation{}, domain.Rejected(string(protocol.RequestUsePowerUp), ErrUsedThisRound)
	}
	m.inFlight[req.Type] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, req.Type)
		m.mu.Unlock()
	}()

	ack, err := m.sender.Send(ctx, protocol.RequestUsePowerUp, protocol.UsePowerUp{
		RoomCode:      req.RoomCode,
		Type:          string(req.Type),
		QuestionIndex: req.QuestionIndex,
		SelectedIndex: req.Selected,
	})
	if err != nil {
		return Activation{}, err
	}
	if err := ack.Err(protocol.RequestUsePowerUp); err != nil {
		return Activation{}, err
	}

	act := Activation{Type: req.Type, QuestionIndex: req.QuestionIndex}
	switch req.Type {
	case FiftyFifty:
		var body protocol.PowerUpAck
		if err := ack.Decode(&body); err != nil {
			log.Warn().Err(err).Msg("undecodable 50-50 ack")
		} else if err := ValidateHidden(body.RemovedOptions, req.TotalOptions, req.Selected); err != nil {
			log.Warn().Err(err).Ints("removed", body.RemovedOptions).Msg("ignoring invalid 50-50 result")
		} else {
			act.Hidden = body.RemovedOptions
		}
	case TimeFreeze:
		act.FreezeFor = m.freezeFor
	}

	m.mu.Lock()
	if m.state.question == req.QuestionIndex {
		m.state = m.state.Consume(act)
	} else {
		// the question moved on while waiting; only the count is spent
		m.state = m.state.spend(req.Type)
	}
	m.mu.Unlock()

	log.Info().Str("powerup", string(req.Type)).Int("question_index", req.QuestionIndex).Msg("power-up activated")
	return act, nil
}
