package protocol

import (
	"livequiz/internal/domain"
)

// RequestType names an outbound request.
type RequestType string

const (
	RequestAuthenticate RequestType = "authenticate"
	RequestJoinSession  RequestType = "join-session"
	RequestStartQuiz    RequestType = "start-quiz"
	RequestNextQuestion RequestType = "next-question-force"
	RequestEndSession   RequestType = "end-session"
	RequestPauseQuiz    RequestType = "pause-quiz"
	RequestResumeQuiz   RequestType = "resume-quiz"
	RequestState        RequestType = "request-state"
	RequestSubmitAnswer RequestType = "submit-answer"
	RequestKickPlayer   RequestType = "kick-player"
	RequestUsePowerUp   RequestType = "use-powerup"
	RequestToggleChat   RequestType = "toggle-chat"
	RequestChatMessage  RequestType = "chat-message"
	RequestSendReaction RequestType = "send-reaction"
	RequestPlayerReady  RequestType = "player-ready"
)

// Authenticate is the first request on every new connection.
type Authenticate struct {
	Token string `json:"token"`
}

// JoinSession asks to enter a room.
type JoinSession struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
}

// RoomCommand carries only the room code (start, force-next, end, pause, resume, state sync).
type RoomCommand struct {
	RoomCode string `json:"roomCode"`
}

// SubmitAnswer sends the participant's choice. Answer is the option text.
type SubmitAnswer struct {
	RoomCode      string `json:"roomCode"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	SelectedIndex int    `json:"selectedIndex"`
	TimeTaken     int    `json:"timeTaken"`
}

// KickPlayer removes a participant (host only).
type KickPlayer struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

// UsePowerUp activates a power-up for the current question.
type UsePowerUp struct {
	RoomCode      string `json:"roomCode"`
	Type          string `json:"type"`
	QuestionIndex int    `json:"questionIndex"`
	SelectedIndex *int   `json:"selectedIndex,omitempty"`
}

// ToggleChat enables or disables chat for the room (host only).
type ToggleChat struct {
	RoomCode string `json:"roomCode"`
	Enabled  bool   `json:"enabled"`
}

// ChatMessage posts to the room chat.
type ChatMessage struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
	IsHost   bool   `json:"isHost"`
}

// SendReaction broadcasts an emoji.
type SendReaction struct {
	RoomCode string `json:"roomCode"`
	Emoji    string `json:"emoji"`
}

// PlayerReady toggles the lobby ready flag.
type PlayerReady struct {
	RoomCode string `json:"roomCode"`
	IsReady  bool   `json:"isReady"`
}

// QuestionSnapshot is the current question as reported by a join or state ack.
type QuestionSnapshot struct {
	Question       domain.Question
	QuestionIndex  int
	TimeRemaining  int
	TotalQuestions int
}

// JoinAck is the decoded acknowledgement to join-session.
type JoinAck struct {
	Session      domain.Session
	Participant  domain.Participant
	Participants []domain.Participant
	Current      *QuestionSnapshot
}

type wireSession struct {
	ID             string                 `json:"id"`
	MongoID        string                 `json:"_id"`
	RoomCode       string                 `json:"roomCode"`
	Status         string                 `json:"status"`
	Settings       domain.SessionSettings `json:"settings"`
	QuizID         string                 `json:"quizId"`
	QuizTitle      string                 `json:"quizTitle"`
	TotalQuestions int                    `json:"totalQuestions"`
	Participants   []wireParticipant      `json:"participants"`
}

type wireSnapshot struct {
	Question       *wireQuestion `json:"question"`
	QuestionIndex  int           `json:"questionIndex"`
	TimeRemaining  int           `json:"timeRemaining"`
	TotalQuestions int           `json:"totalQuestions"`
}

type wireJoinAck struct {
	Session         wireSession     `json:"session"`
	Participant     wireParticipant `json:"participant"`
	CurrentQuestion *wireSnapshot   `json:"currentQuestion"`
}

// DecodeJoinAck extracts the session, the caller's participant and an optional question snapshot.
func DecodeJoinAck(a Ack) (JoinAck, error) {
	var w wireJoinAck
	if err := a.Decode(&w); err != nil {
		return JoinAck{}, &domain.ProtocolError{Type: string(RequestJoinSession), Err: err}
	}
	id := w.Session.ID
	if id == "" {
		id = w.Session.MongoID
	}
	out := JoinAck{
		Session: domain.Session{
			ID:             id,
			RoomCode:       w.Session.RoomCode,
			Status:         domain.NormalizeStatus(w.Session.Status),
			Settings:       w.Session.Settings,
			QuizID:         w.Session.QuizID,
			QuizTitle:      w.Session.QuizTitle,
			TotalQuestions: w.Session.TotalQuestions,
		},
		Participant: w.Participant.toDomain(),
	}
	for _, p := range w.Session.Participants {
		out.Participants = append(out.Participants, p.toDomain())
	}
	if w.CurrentQuestion != nil && w.CurrentQuestion.Question != nil {
		snap, err := w.CurrentQuestion.toDomain()
		if err != nil {
			return JoinAck{}, &domain.ProtocolError{Type: string(RequestJoinSession), Err: err}
		}
		out.Current = &snap
	}
	return out, nil
}

// DecodeStateAck decodes the reply to request-state.
func DecodeStateAck(a Ack) (*QuestionSnapshot, error) {
	var w wireSnapshot
	if err := a.Decode(&w); err != nil {
		return nil, &domain.ProtocolError{Type: string(RequestState), Err: err}
	}
	if w.Question == nil {
		return nil, nil
	}
	snap, err := w.toDomain()
	if err != nil {
		return nil, &domain.ProtocolError{Type: string(RequestState), Err: err}
	}
	return &snap, nil
}

func (w wireSnapshot) toDomain() (QuestionSnapshot, error) {
	q, err := w.Question.toDomain(w.QuestionIndex)
	if err != nil {
		return QuestionSnapshot{}, err
	}
	total := w.TotalQuestions
	return QuestionSnapshot{
		Question:       q,
		QuestionIndex:  w.QuestionIndex,
		TimeRemaining:  w.TimeRemaining,
		TotalQuestions: total,
	}, nil
}

// SubmitAck is the reply to submit-answer. Points is a presentation estimate.
type SubmitAck struct {
	Points *int `json:"points"`
}

// PowerUpAck is the reply to use-powerup.
type PowerUpAck struct {
	RemovedOptions []int `json:"removedOptions"`
}
