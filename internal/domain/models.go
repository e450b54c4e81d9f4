package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is the server-declared lifecycle status of a room.
type SessionStatus string

const (
	StatusLobby    SessionStatus = "lobby"
	StatusActive   SessionStatus = "active"
	StatusPaused   SessionStatus = "paused"
	StatusFinished SessionStatus = "finished"
)

// NormalizeStatus maps the aliases some servers emit onto the four known statuses.
func NormalizeStatus(raw string) SessionStatus {
	switch raw {
	case "waiting", "lobby", "":
		return StatusLobby
	case "active", "in-progress", "in_progress", "playing":
		return StatusActive
	case "paused":
		return StatusPaused
	case "finished", "completed", "ended":
		return StatusFinished
	default:
		return SessionStatus(raw)
	}
}

// SessionSettings are the host-chosen switches of a room.
type SessionSettings struct {
	ChatEnabled     bool `json:"chatEnabled"`
	AllowLateJoin   bool `json:"allowLateJoin"`
	ShowLeaderboard bool `json:"showLeaderboard"`
	PowerUpsEnabled bool `json:"powerupsEnabled"`
}

// Session is one live quiz instance identified by its room code.
type Session struct {
	ID             string          `json:"id"`
	RoomCode       string          `json:"roomCode"`
	Status         SessionStatus   `json:"status"`
	Settings       SessionSettings `json:"settings"`
	QuizID         string          `json:"quizId"`
	QuizTitle      string          `json:"quizTitle"`
	TotalQuestions int             `json:"totalQuestions"`
}

// Participant is a connected host or player attached to a session.
type Participant struct {
	UserID         string         `json:"userId"`
	Username       string         `json:"username"`
	Score          int            `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	PowerUps       map[string]int `json:"powerups,omitempty"`
	Connected      bool           `json:"connected"`
	Ready          bool           `json:"isReady"`
	IsHost         bool           `json:"isHost"`
}

// Key identifies a participant; some servers omit the user id for guests.
func (p Participant) Key() string {
	if p.UserID != "" {
		return p.UserID
	}
	return "name:" + p.Username
}

// Option is one selectable answer.
type Option struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Question as delivered to clients. It never carries the correct answer.
type Question struct {
	Index     int      `json:"questionIndex"`
	Prompt    string   `json:"question"`
	Options   []Option `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// OptionIndex returns the index of the option whose text matches, or -1.
func (q Question) OptionIndex(text string) int {
	for i, opt := range q.Options {
		if opt.Text == text {
			return i
		}
	}
	return -1
}

// AnswerSubmission is a participant's accepted answer to one question.
type AnswerSubmission struct {
	ParticipantID string    `json:"participantId"`
	QuestionIndex int       `json:"questionIndex"`
	SelectedIndex int       `json:"selectedIndex"`
	TimeTaken     int       `json:"timeTaken"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// SubmissionKey identifies one answer slot: a participant and a question in a room.
type SubmissionKey struct {
	RoomCode      string
	ParticipantID string
	QuestionIndex int
}

func (k SubmissionKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.RoomCode, k.ParticipantID, k.QuestionIndex)
}

// LeaderboardEntry is one row of an authoritative snapshot.
type LeaderboardEntry struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	Rank           int    `json:"rank"`
}

// Key mirrors Participant.Key.
func (e LeaderboardEntry) Key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return "name:" + e.Username
}

// FinalResults is delivered with quiz-completed.
type FinalResults struct {
	SessionID      string             `json:"sessionId"`
	QuizID         string             `json:"quizId"`
	TotalQuestions int                `json:"totalQuestions"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
}

// ChatMessage is append-only and independent of the question lifecycle.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	IsHost    bool      `json:"isHost"`
	Timestamp time.Time `json:"timestamp"`
}

// Reaction is a short emoji broadcast.
type Reaction struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	IsHost    bool      `json:"isHost"`
	Timestamp time.Time `json:"timestamp"`
}

// JournalEntry is one recorded inbound frame, or a recorded ack of a
// request whose reply changes session state (join-session, request-state).
type JournalEntry struct {
	RoomCode   string          `json:"roomCode"`
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}
