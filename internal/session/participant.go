package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"livequiz/internal/domain"
	"livequiz/internal/powerup"
	"livequiz/internal/protocol"
)

// Participant is the player's controller.
type Participant struct {
	*Controller
}

// NewParticipant wires a participant controller onto t. Nothing is sent
// until Join.
func NewParticipant(t Transport, opts Options) *Participant {
	p := &Participant{Controller: newController(t, RoleParticipant, opts)}
	if opts.AutoSubmit {
		p.onZero = p.autoSubmit
	}
	return p
}

// Join connects and enters the room.
func (p *Participant) Join(ctx context.Context) error {
	return p.join(ctx)
}

// PowerUps returns the current power-up view.
func (p *Participant) PowerUps() powerup.State {
	return p.powerups.State()
}

// Select marks option i without submitting it.
func (p *Participant) Select(i int) error {
	p.mu.Lock()
	s := p.state
	if !s.Answering() {
		p.mu.Unlock()
		if s.Submission != nil || s.Pending != nil {
			return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrAlreadySubmitted)
		}
		return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrWrongPhase)
	}
	if i < 0 || i >= len(s.Question.Options) || s.OptionHidden(i) {
		p.mu.Unlock()
		return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrInvalidOption)
	}
	sel := i
	p.state.Selected = &sel
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.hub.Publish(snap)
	return nil
}

// SubmitAnswer selects option i and submits it.
func (p *Participant) SubmitAnswer(ctx context.Context, i int) error {
	if err := p.Select(i); err != nil {
		return err
	}
	return p.Submit(ctx)
}

// Submit sends the selected option. At most one submit-answer leaves this
// client per question: a second call, a call while the first is in flight,
// and a call after a reconnect all fail with ErrAlreadySubmitted.
func (p *Participant) Submit(ctx context.Context) error {
	p.mu.Lock()
	s := p.state
	switch {
	case p.closed:
		p.mu.Unlock()
		return domain.ErrClosed
	case s.Submission != nil || s.Pending != nil:
		p.mu.Unlock()
		return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrAlreadySubmitted)
	case s.Phase != PhaseQuestion || s.Question == nil:
		p.mu.Unlock()
		return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrWrongPhase)
	case s.Selected == nil:
		p.mu.Unlock()
		return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrNoSelection)
	}

	limit := s.Question.TimeLimit
	if limit <= 0 {
		limit = int(p.opts.TimeLimit / time.Second)
	}
	taken := limit - p.timer.Remaining()
	if taken < 0 {
		taken = 0
	}
	sub := domain.AnswerSubmission{
		ParticipantID: s.Self.Key(),
		QuestionIndex: s.QuestionIndex,
		SelectedIndex: *s.Selected,
		TimeTaken:     taken,
		SubmittedAt:   p.clock.Now(),
	}
	p.state.Pending = &sub
	key := submissionKey(s)
	req := protocol.SubmitAnswer{
		RoomCode:      s.Session.RoomCode,
		QuestionIndex: s.QuestionIndex,
		Answer:        s.Question.Options[*s.Selected].Text,
		SelectedIndex: *s.Selected,
		TimeTaken:     taken,
	}
	p.mu.Unlock()

	if p.opts.Ledger != nil {
		ok, err := p.opts.Ledger.Reserve(ctx, key)
		if err != nil {
			p.clearPending(sub.QuestionIndex)
			return err
		}
		if !ok {
			p.clearPending(sub.QuestionIndex)
			return domain.Rejected(string(protocol.RequestSubmitAnswer), domain.ErrAlreadySubmitted)
		}
	}
	p.publish()

	ack, err := p.transport.Send(ctx, protocol.RequestSubmitAnswer, req)
	if err == nil {
		err = ack.Err(protocol.RequestSubmitAnswer)
	}
	if err != nil {
		p.clearPending(sub.QuestionIndex)
		if p.opts.Ledger != nil {
			if relErr := p.opts.Ledger.Release(context.WithoutCancel(ctx), key); relErr != nil {
				log.Warn().Err(relErr).Str("key", key.String()).Msg("submission ledger release failed")
			}
		}
		return err
	}

	var body protocol.SubmitAck
	if decErr := ack.Decode(&body); decErr != nil {
		log.Debug().Err(decErr).Msg("undecodable submit-answer ack body")
	}

	p.mu.Lock()
	if p.state.QuestionIndex == sub.QuestionIndex {
		p.state.Pending = nil
		p.state.Submission = &sub
		if body.Points != nil && p.state.Reported == nil {
			pts := *body.Points
			p.state.Reported = &pts
		}
	}
	p.mu.Unlock()
	p.publish()

	if p.opts.Ledger != nil {
		if err := p.opts.Ledger.Confirm(context.WithoutCancel(ctx), key, sub); err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("submission ledger confirm failed")
		}
	}
	log.Info().
		Str("room_code", req.RoomCode).
		Int("question_index", sub.QuestionIndex).
		Int("selected", sub.SelectedIndex).
		Msg("answer submitted")
	return nil
}

func (p *Participant) clearPending(questionIndex int) {
	p.mu.Lock()
	if p.state.QuestionIndex == questionIndex {
		p.state.Pending = nil
	}
	p.mu.Unlock()
	p.publish()
}

// autoSubmit runs when the local countdown hits zero. It is an outbound
// request only; the phase still waits for question-time-up.
func (p *Participant) autoSubmit() {
	p.mu.Lock()
	ready := p.state.Answering() && p.state.Selected != nil
	p.mu.Unlock()
	if !ready {
		return
	}
	go func() {
		err := p.Submit(p.ctx)
		var rejected *domain.CommandRejected
		if err != nil && !errors.As(err, &rejected) && !errors.Is(err, domain.ErrClosed) {
			log.Warn().Err(err).Msg("auto-submit failed")
		}
	}()
}

// UsePowerUp activates t for the running question and applies its local effect.
func (p *Participant) UsePowerUp(ctx context.Context, t powerup.Type) (powerup.Activation, error) {
	p.mu.Lock()
	s := p.state
	p.mu.Unlock()
	if s.Phase != PhaseQuestion || s.Question == nil {
		return powerup.Activation{}, domain.Rejected(string(protocol.RequestUsePowerUp), domain.ErrWrongPhase)
	}
	if t == powerup.FiftyFifty && s.Submission != nil {
		return powerup.Activation{}, domain.Rejected(string(protocol.RequestUsePowerUp), domain.ErrAlreadySubmitted)
	}

	act, err := p.powerups.Use(ctx, powerup.Request{
		RoomCode:      s.Session.RoomCode,
		Type:          t,
		QuestionIndex: s.QuestionIndex,
		TotalOptions:  len(s.Question.Options),
		Selected:      s.Selected,
	})
	if err != nil {
		return act, err
	}

	p.mu.Lock()
	if p.state.QuestionIndex == act.QuestionIndex {
		switch act.Type {
		case powerup.FiftyFifty:
			p.state.Hidden = append([]int(nil), act.Hidden...)
		case powerup.DoublePoints:
			p.state.Boost = 2
		case powerup.TimeFreeze:
			if p.state.Phase == PhaseQuestion {
				p.timer.Freeze(act.FreezeFor)
			}
		}
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	p.hub.Publish(snap)
	return act, nil
}

// SetReady toggles the lobby ready flag.
func (p *Participant) SetReady(ctx context.Context, ready bool) error {
	return p.command(ctx, protocol.RequestPlayerReady, protocol.PlayerReady{
		RoomCode: p.roomCode(),
		IsReady:  ready,
	}, PhaseLobby)
}
