package session

import (
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
	"livequiz/internal/scoring"
)

// TimerOp is an instruction for the countdown reconciler.
type TimerOp int

const (
	TimerStart TimerOp = iota + 1
	TimerSnap
	TimerZero
	TimerPause
	TimerResume
	TimerStop
)

// TimerStep is one reconciler call.
type TimerStep struct {
	Op    TimerOp
	Value int
}

// Effects are the side effects a transition asks the controller to perform.
type Effects struct {
	Timer        []TimerStep
	NewQuestion  bool
	RequestState bool
	Rejoin       bool
	Teardown     bool
}

func (e Effects) timer(op TimerOp, v int) Effects {
	e.Timer = append(e.Timer, TimerStep{Op: op, Value: v})
	return e
}

func stale(ev protocol.Event, index, current int, reason string) error {
	return &domain.StaleEventError{Type: string(ev.Type()), Index: index, Current: current, Reason: reason}
}

// Reduce folds one authoritative event into prev. A discarded event returns
// prev unchanged together with a *domain.StaleEventError.
func Reduce(prev State, ev protocol.Event) (State, Effects, error) {
	var none Effects
	s := prev

	switch e := ev.(type) {
	case protocol.ParticipantJoined:
		s.Roster = s.Roster.Join(e.Participant)
		return s, none, nil

	case protocol.ParticipantDisconnected:
		s.Roster = s.Roster.Remove(e.UserID, e.Username)
		return s, none, nil

	case protocol.PlayerReadyUpdate:
		s.Roster = s.Roster.SetReady(e.UserID, e.IsReady)
		if e.UserID == s.Self.UserID {
			s.Self.Ready = e.IsReady
		}
		return s, none, nil

	case protocol.PlayerKicked:
		if s.Self.UserID != "" && e.UserID == s.Self.UserID {
			return finish(s, "kicked from session")
		}
		s.Roster = s.Roster.Remove(e.UserID, e.Username)
		return s, none, nil

	case protocol.KickedFromSession:
		reason := "kicked from session"
		if e.Reason != "" {
			reason += ": " + e.Reason
		}
		return finish(s, reason)

	case protocol.SessionEndedByHost:
		if s.Phase == PhaseFinished && s.EndReason != "" {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "session already ended")
		}
		return finish(s, "session ended by host")

	case protocol.Countdown:
		if s.Phase != PhaseLobby {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "countdown outside lobby")
		}
		s.Countdown = e.Value
		return s, none, nil

	case protocol.QuestionStarted:
		return startQuestion(prev, ev, e.Question, e.QuestionIndex, e.TimeRemaining, e.TotalQuestions)

	case protocol.TimerUpdate:
		if e.QuestionIndex != nil && *e.QuestionIndex != s.QuestionIndex {
			return prev, none, stale(ev, *e.QuestionIndex, s.QuestionIndex, "timer for another question")
		}
		if !s.questionLive() {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "no question running")
		}
		s.TimeRemaining = e.TimeRemaining
		return s, none.timer(TimerSnap, e.TimeRemaining), nil

	case protocol.QuestionTimeUp:
		if e.QuestionIndex != nil && *e.QuestionIndex < s.QuestionIndex {
			return prev, none, stale(ev, *e.QuestionIndex, s.QuestionIndex, "behind current question")
		}
		if !s.questionLive() {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "answering already closed")
		}
		s.Phase = PhaseAnswerReveal
		s.ResumePhase = ""
		s.TimeRemaining = 0
		s.Pending = nil
		return s, none.timer(TimerZero, 0), nil

	case protocol.QuestionCompleted:
		return reveal(prev, e)

	case protocol.AnswerFeedback:
		if e.QuestionIndex != s.QuestionIndex {
			return prev, none, stale(ev, e.QuestionIndex, s.QuestionIndex, "feedback for another question")
		}
		pts := e.Points
		s.Reported = &pts
		if s.Reveal != nil && s.Reveal.QuestionIndex == e.QuestionIndex {
			r := *s.Reveal
			r.Points = scoring.Estimate(s.Reported, questionPoints(s), r.Correct, s.Boost)
			s.Reveal = &r
		}
		return s, none, nil

	case protocol.QuizCompleted:
		if s.Phase == PhaseFinished {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "duplicate quiz-completed")
		}
		results := e.Results
		s.Results = &results
		if len(results.Leaderboard) > 0 {
			s.Board = s.Board.Replace(results.Leaderboard)
			s.Roster = s.Roster.ApplyBoard(s.Board)
			s = syncSelfScore(s)
		}
		s.Phase = PhaseFinished
		s.ResumePhase = ""
		s.Pending = nil
		s.Session.Status = domain.StatusFinished
		return s, none.timer(TimerStop, 0), nil

	case protocol.LeaderboardUpdate:
		s.Board = s.Board.Replace(e.Entries)
		s.Roster = s.Roster.ApplyBoard(s.Board)
		return syncSelfScore(s), none, nil

	case protocol.QuizPaused:
		if s.Phase != PhaseQuestion && s.Phase != PhaseAnswerReveal {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "nothing to pause")
		}
		s.ResumePhase = s.Phase
		s.Phase = PhasePaused
		s.Session.Status = domain.StatusPaused
		return s, none.timer(TimerPause, 0), nil

	case protocol.QuizResumed:
		if s.Phase != PhasePaused {
			return prev, none, stale(ev, s.QuestionIndex, s.QuestionIndex, "not paused")
		}
		s.Phase = s.ResumePhase
		if s.Phase == "" {
			s.Phase = PhaseQuestion
		}
		s.ResumePhase = ""
		s.Session.Status = domain.StatusActive
		eff := none
		if e.TimeRemaining != nil && s.Phase == PhaseQuestion {
			s.TimeRemaining = *e.TimeRemaining
			eff = eff.timer(TimerSnap, *e.TimeRemaining)
		}
		return s, eff.timer(TimerResume, 0), nil

	case protocol.ChatToggled:
		s.Session.Settings.ChatEnabled = e.Enabled
		return s, none, nil

	case protocol.ChatMessageReceived, protocol.ReactionReceived:
		// owned by the chat subchannel
		return prev, none, nil
	}
	return prev, none, &domain.ProtocolError{Type: string(ev.Type()), Err: domain.ErrUnknownEvent}
}

func startQuestion(prev State, ev protocol.Event, q domain.Question, idx, remaining, total int) (State, Effects, error) {
	var none Effects
	if prev.Phase == PhaseFinished {
		return prev, none, stale(ev, idx, prev.QuestionIndex, "session finished")
	}
	if idx < prev.QuestionIndex {
		return prev, none, stale(ev, idx, prev.QuestionIndex, "behind current question")
	}
	if idx == prev.QuestionIndex && prev.Question != nil {
		return prev, none, stale(ev, idx, prev.QuestionIndex, "question already started")
	}
	s := prev.clearQuestion()
	q.Index = idx
	s.Question = &q
	s.QuestionIndex = idx
	if total > 0 {
		s.TotalQuestions = total
		s.Session.TotalQuestions = total
	}
	if remaining <= 0 {
		remaining = q.TimeLimit
	}
	s.TimeRemaining = remaining
	s.Phase = PhaseQuestion
	s.Session.Status = domain.StatusActive
	eff := none.timer(TimerStart, remaining)
	eff.NewQuestion = true
	return s, eff, nil
}

func reveal(prev State, e protocol.QuestionCompleted) (State, Effects, error) {
	var none Effects
	idx := prev.QuestionIndex
	if e.QuestionIndex != nil {
		idx = *e.QuestionIndex
	}
	switch {
	case idx < prev.QuestionIndex:
		return prev, none, stale(e, idx, prev.QuestionIndex, "behind current question")
	case idx > prev.QuestionIndex:
		return prev, none, stale(e, idx, prev.QuestionIndex, "question never started here")
	case prev.Reveal != nil && prev.Reveal.QuestionIndex == idx:
		return prev, none, stale(e, idx, prev.QuestionIndex, "already revealed")
	case prev.Question == nil || !revealable(prev.Phase):
		return prev, none, stale(e, idx, prev.QuestionIndex, "no question to reveal")
	}

	s := prev
	correctIndex := -1
	if e.CorrectIndex != nil {
		correctIndex = *e.CorrectIndex
	} else if s.Question != nil {
		correctIndex = s.Question.OptionIndex(e.CorrectAnswer)
	}
	answer := e.CorrectAnswer
	if answer == "" && s.Question != nil && correctIndex >= 0 && correctIndex < len(s.Question.Options) {
		answer = s.Question.Options[correctIndex].Text
	}

	var submitted *int
	if s.Submission != nil {
		v := s.Submission.SelectedIndex
		submitted = &v
	}
	correct := submitted != nil && correctIndex >= 0 && *submitted == correctIndex

	r := Reveal{
		QuestionIndex: idx,
		CorrectIndex:  correctIndex,
		CorrectAnswer: answer,
		Explanation:   e.Explanation,
		Submitted:     submitted,
		Correct:       correct,
	}
	s.Streak = scoring.NextStreak(prev.Streak, submitted, correctIndex)
	r.Points = scoring.Estimate(s.Reported, questionPoints(s), correct, s.Boost)
	s.Reveal = &r
	s.Pending = nil
	s.Phase = PhaseAnswerReveal
	s.ResumePhase = ""
	s.TimeRemaining = 0
	return s, none.timer(TimerZero, 0), nil
}

func revealable(p Phase) bool {
	return p == PhaseQuestion || p == PhaseAnswerReveal || p == PhasePaused
}

func finish(s State, reason string) (State, Effects, error) {
	s.Phase = PhaseFinished
	s.ResumePhase = ""
	s.Pending = nil
	s.EndReason = reason
	s.Session.Status = domain.StatusFinished
	eff := Effects{Teardown: true}
	return s, eff.timer(TimerStop, 0), nil
}

func questionPoints(s State) int {
	if s.Question == nil {
		return 0
	}
	return s.Question.Points
}

func syncSelfScore(s State) State {
	if e, ok := s.Board.Entry(s.Self.Key()); ok {
		s.Self.Score = e.Score
		s.Self.CorrectAnswers = e.CorrectAnswers
	}
	return s
}

// Join applies a join acknowledgement. A late join into a running game goes
// straight to QUESTION when the ack carries a snapshot, or asks for one.
func Join(prev State, ack protocol.JoinAck) (State, Effects) {
	var eff Effects
	s := prev
	s.Session = ack.Session
	s.Self = ack.Participant
	if ack.Session.TotalQuestions > 0 {
		s.TotalQuestions = ack.Session.TotalQuestions
	}
	participants := ack.Participants
	if ack.Participant.UserID != "" || ack.Participant.Username != "" {
		found := false
		for _, p := range participants {
			if p.Key() == ack.Participant.Key() {
				found = true
				break
			}
		}
		if !found {
			participants = append(append([]domain.Participant(nil), participants...), ack.Participant)
		}
	}
	s.Roster = s.Roster.Reset(participants)
	s.Link = protocol.LinkConnected

	switch ack.Session.Status {
	case domain.StatusFinished:
		s.Phase = PhaseFinished
		s.ResumePhase = ""
		return s, eff.timer(TimerStop, 0)
	case domain.StatusActive, domain.StatusPaused:
		if ack.Current == nil {
			if !revealable(prev.Phase) {
				s.Phase = PhaseConnecting
			}
			eff.RequestState = true
			return s, eff
		}
		next, syncEff := Sync(s, *ack.Current, ack.Session.Status == domain.StatusPaused)
		return next, syncEff
	default:
		switch prev.Phase {
		case PhaseQuestion, PhaseAnswerReveal, PhasePaused, PhaseFinished:
			// an authoritative question event already overtook the ack
			return s, eff
		}
		s.Phase = PhaseLobby
		return s, eff
	}
}

// Sync applies a question snapshot from a join or request-state ack. An
// older snapshot is ignored; the current question keeps its submission.
func Sync(prev State, snap protocol.QuestionSnapshot, paused bool) (State, Effects) {
	var eff Effects
	if snap.QuestionIndex < prev.QuestionIndex || prev.Phase == PhaseFinished {
		return prev, eff
	}
	s := prev
	if snap.TotalQuestions > 0 {
		s.TotalQuestions = snap.TotalQuestions
		s.Session.TotalQuestions = snap.TotalQuestions
	}

	if snap.QuestionIndex == prev.QuestionIndex && prev.Question != nil {
		if prev.Phase == PhaseAnswerReveal || (prev.Phase == PhasePaused && prev.ResumePhase == PhaseAnswerReveal) {
			return s, eff
		}
		s.TimeRemaining = snap.TimeRemaining
		if s.Phase == PhaseConnecting || s.Phase == PhaseDisconnected || s.Phase == PhaseLobby {
			s.Phase = PhaseQuestion
			eff = eff.timer(TimerStart, snap.TimeRemaining)
		} else {
			eff = eff.timer(TimerSnap, snap.TimeRemaining)
		}
		return pauseIf(s, eff, paused)
	}

	s = s.clearQuestion()
	q := snap.Question
	q.Index = snap.QuestionIndex
	s.Question = &q
	s.QuestionIndex = snap.QuestionIndex
	s.TimeRemaining = snap.TimeRemaining
	s.Phase = PhaseQuestion
	s.Session.Status = domain.StatusActive
	eff = eff.timer(TimerStart, snap.TimeRemaining)
	eff.NewQuestion = true
	return pauseIf(s, eff, paused)
}

func pauseIf(s State, eff Effects, paused bool) (State, Effects) {
	if !paused || s.Phase != PhaseQuestion {
		return s, eff
	}
	s.ResumePhase = PhaseQuestion
	s.Phase = PhasePaused
	s.Session.Status = domain.StatusPaused
	return s, eff.timer(TimerPause, 0)
}

// Link folds a transport status change into the state.
func Link(prev State, status protocol.LinkStatus, err error) (State, Effects) {
	var eff Effects
	s := prev
	was := prev.Link
	s.Link = status
	switch status {
	case protocol.LinkDisconnected:
		if err == nil || s.Phase == PhaseFinished {
			return s, eff
		}
		s.Phase = PhaseDisconnected
		s.ResumePhase = ""
		s.Pending = nil
		return s, eff.timer(TimerStop, 0)
	case protocol.LinkConnected:
		if s.Joined() && s.Phase != PhaseFinished && (was == protocol.LinkReconnecting || was == protocol.LinkDisconnected) {
			eff.Rejoin = true
		}
	}
	return s, eff
}
