// Package session is the client state machine of a live quiz. Inbound
// events are folded into an immutable State by pure reducer functions;
// controllers own the side effects (timer, requests, subscriptions).
package session

import (
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
	"livequiz/internal/scoring"
)

// Phase is the presentation state of a session.
type Phase string

const (
	PhaseConnecting   Phase = "connecting"
	PhaseLobby        Phase = "lobby"
	PhaseQuestion     Phase = "question"
	PhaseAnswerReveal Phase = "answer_reveal"
	PhasePaused       Phase = "paused"
	PhaseFinished     Phase = "finished"
	PhaseDisconnected Phase = "disconnected"
)

// Role distinguishes the host view from a participant view.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Reveal is the outcome of question-completed, computed once per question.
type Reveal struct {
	QuestionIndex int
	CorrectIndex  int
	CorrectAnswer string
	Explanation   string
	Submitted     *int
	Correct       bool
	// Points is a presentation estimate; scores only come from leaderboard snapshots.
	Points int
}

// State is one immutable snapshot of a session. Reducers return a new value
// and never modify the one they were given.
type State struct {
	Role        Role
	Phase       Phase
	ResumePhase Phase
	Link        protocol.LinkStatus

	Session domain.Session
	Self    domain.Participant
	Roster  scoring.Roster
	Board   scoring.Board

	Question       *domain.Question
	QuestionIndex  int
	TotalQuestions int
	// TimeRemaining is the last authoritative value, not the ticking one.
	TimeRemaining int
	Countdown     int

	Selected   *int
	Pending    *domain.AnswerSubmission
	Submission *domain.AnswerSubmission
	Hidden     []int
	Boost      int
	Reported   *int
	Reveal     *Reveal
	Streak     int

	Results   *domain.FinalResults
	EndReason string
}

// NewState is the state before the join ack arrives.
func NewState(role Role) State {
	return State{
		Role:          role,
		Phase:         PhaseConnecting,
		Link:          protocol.LinkConnecting,
		QuestionIndex: -1,
		Boost:         1,
	}
}

// Joined reports whether a join ack has been applied.
func (s State) Joined() bool { return s.Session.RoomCode != "" }

// Answering reports whether the participant can still pick or submit.
func (s State) Answering() bool {
	return s.Phase == PhaseQuestion && s.Submission == nil && s.Pending == nil
}

// Participants is the visible roster.
func (s State) Participants() []domain.Participant { return s.Roster.View() }

// Leaderboard is the latest authoritative ranking.
func (s State) Leaderboard() []domain.LeaderboardEntry { return s.Board.Entries() }

// OptionHidden reports whether option i was removed by 50-50.
func (s State) OptionHidden(i int) bool {
	for _, h := range s.Hidden {
		if h == i {
			return true
		}
	}
	return false
}

// questionLive covers QUESTION and a pause taken from QUESTION.
func (s State) questionLive() bool {
	return s.Phase == PhaseQuestion || (s.Phase == PhasePaused && s.ResumePhase == PhaseQuestion)
}

// clearQuestion resets everything scoped to a single question.
func (s State) clearQuestion() State {
	s.Selected = nil
	s.Pending = nil
	s.Submission = nil
	s.Hidden = nil
	s.Boost = 1
	s.Reported = nil
	s.Reveal = nil
	s.ResumePhase = ""
	s.Countdown = 0
	return s
}
