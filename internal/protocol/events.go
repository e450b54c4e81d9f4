package protocol

import (
	"livequiz/internal/domain"
)

// EventType names an inbound, server-originated event.
type EventType string

const (
	EventParticipantJoined       EventType = "participant-joined"
	EventParticipantDisconnected EventType = "participant-disconnected"
	EventQuizStarted             EventType = "quiz-started"
	EventNextQuestion            EventType = "next-question"
	EventTimerUpdate             EventType = "timer-update"
	EventQuestionCompleted       EventType = "question-completed"
	EventQuestionTimeUp          EventType = "question-time-up"
	EventQuizCompleted           EventType = "quiz-completed"
	EventLeaderboardUpdate       EventType = "leaderboard-update"
	EventQuizPaused              EventType = "quiz-paused"
	EventQuizResumed             EventType = "quiz-resumed"
	EventChatToggled             EventType = "chat-toggled"
	EventChatMessage             EventType = "chat-message"
	EventReactionReceived        EventType = "reaction-received"
	EventSessionEndedByHost      EventType = "session-ended-by-host"
	EventCountdown               EventType = "countdown"
	EventPlayerReadyUpdate       EventType = "player-ready-update"
	EventPlayerKicked            EventType = "player-kicked"
	EventKickedFromSession       EventType = "kicked-from-session"
	EventAnswerFeedback          EventType = "answer-feedback"
)

// Event is the closed union of inbound events. Only types in this package implement it.
type Event interface {
	Type() EventType
	event()
}

// ParticipantJoined announces a new roster member.
type ParticipantJoined struct {
	Participant domain.Participant
}

// ParticipantDisconnected removes a roster member.
type ParticipantDisconnected struct {
	UserID   string
	Username string
}

// QuestionStarted is delivered as quiz-started for the first question and
// next-question afterwards; both share one shape.
type QuestionStarted struct {
	Kind           EventType
	Question       domain.Question
	QuestionIndex  int
	TimeRemaining  int
	TotalQuestions int
}

// TimerUpdate carries the authoritative remaining time.
type TimerUpdate struct {
	TimeRemaining int
	QuestionIndex *int
}

// QuestionCompleted reveals the correct answer. Either CorrectIndex or
// CorrectAnswer (option text) is set.
type QuestionCompleted struct {
	QuestionIndex *int
	CorrectIndex  *int
	CorrectAnswer string
	Explanation   string
}

// QuestionTimeUp closes answering for the current question.
type QuestionTimeUp struct {
	QuestionIndex *int
}

// QuizCompleted ends the game.
type QuizCompleted struct {
	Results domain.FinalResults
}

// LeaderboardUpdate is a complete, pre-sorted snapshot.
type LeaderboardUpdate struct {
	Entries []domain.LeaderboardEntry
}

// QuizPaused suspends the current phase.
type QuizPaused struct{}

// QuizResumed restores the phase that was paused.
type QuizResumed struct {
	TimeRemaining *int
}

// ChatToggled enables or disables room chat.
type ChatToggled struct {
	Enabled bool
}

// ChatMessageReceived is a chat line broadcast to the room.
type ChatMessageReceived struct {
	Message domain.ChatMessage
}

// ReactionReceived is an emoji broadcast to the room.
type ReactionReceived struct {
	Reaction domain.Reaction
}

// SessionEndedByHost tears the room down.
type SessionEndedByHost struct {
	SessionID string
}

// Countdown is the pre-game countdown shown in the lobby.
type Countdown struct {
	Value int
}

// PlayerReadyUpdate mirrors a participant's ready toggle.
type PlayerReadyUpdate struct {
	UserID  string
	IsReady bool
}

// PlayerKicked confirms a participant was removed by the host.
type PlayerKicked struct {
	UserID   string
	Username string
}

// KickedFromSession is sent only to the removed participant.
type KickedFromSession struct {
	Reason string
}

// AnswerFeedback is the per-participant result of a submission. Points is a
// presentation estimate, never an authoritative score.
type AnswerFeedback struct {
	QuestionIndex int
	IsCorrect     bool
	Points        int
	Streak        int
}

func (ParticipantJoined) Type() EventType       { return EventParticipantJoined }
func (ParticipantDisconnected) Type() EventType { return EventParticipantDisconnected }
func (e QuestionStarted) Type() EventType       { return e.Kind }
func (TimerUpdate) Type() EventType             { return EventTimerUpdate }
func (QuestionCompleted) Type() EventType       { return EventQuestionCompleted }
func (QuestionTimeUp) Type() EventType          { return EventQuestionTimeUp }
func (QuizCompleted) Type() EventType           { return EventQuizCompleted }
func (LeaderboardUpdate) Type() EventType       { return EventLeaderboardUpdate }
func (QuizPaused) Type() EventType              { return EventQuizPaused }
func (QuizResumed) Type() EventType             { return EventQuizResumed }
func (ChatToggled) Type() EventType             { return EventChatToggled }
func (ChatMessageReceived) Type() EventType     { return EventChatMessage }
func (ReactionReceived) Type() EventType        { return EventReactionReceived }
func (SessionEndedByHost) Type() EventType      { return EventSessionEndedByHost }
func (Countdown) Type() EventType               { return EventCountdown }
func (PlayerReadyUpdate) Type() EventType       { return EventPlayerReadyUpdate }
func (PlayerKicked) Type() EventType            { return EventPlayerKicked }
func (KickedFromSession) Type() EventType       { return EventKickedFromSession }
func (AnswerFeedback) Type() EventType          { return EventAnswerFeedback }

func (ParticipantJoined) event()       {}
func (ParticipantDisconnected) event() {}
func (QuestionStarted) event()         {}
func (TimerUpdate) event()             {}
func (QuestionCompleted) event()       {}
func (QuestionTimeUp) event()          {}
func (QuizCompleted) event()           {}
func (LeaderboardUpdate) event()       {}
func (QuizPaused) event()              {}
func (QuizResumed) event()             {}
func (ChatToggled) event()             {}
func (ChatMessageReceived) event()     {}
func (ReactionReceived) event()        {}
func (SessionEndedByHost) event()      {}
func (Countdown) event()               {}
func (PlayerReadyUpdate) event()       {}
func (PlayerKicked) event()            {}
func (KickedFromSession) event()       {}
func (AnswerFeedback) event()          {}
