package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"livequiz/internal/domain"
)

type decoder func(raw json.RawMessage) (Event, error)

// decoders is the exhaustive dispatch table for inbound frames.
var decoders = map[EventType]decoder{
	EventParticipantJoined:       decodeParticipantJoined,
	EventParticipantDisconnected: decodeParticipantDisconnected,
	EventQuizStarted:             questionStartedDecoder(EventQuizStarted),
	EventNextQuestion:            questionStartedDecoder(EventNextQuestion),
	EventTimerUpdate:             decodeTimerUpdate,
	EventQuestionCompleted:       decodeQuestionCompleted,
	EventQuestionTimeUp:          decodeQuestionTimeUp,
	EventQuizCompleted:           decodeQuizCompleted,
	EventLeaderboardUpdate:       decodeLeaderboardUpdate,
	EventQuizPaused:              func(json.RawMessage) (Event, error) { return QuizPaused{}, nil },
	EventQuizResumed:             decodeQuizResumed,
	EventChatToggled:             decodeChatToggled,
	EventChatMessage:             decodeChatMessage,
	EventReactionReceived:        decodeReaction,
	EventSessionEndedByHost:      decodeSessionEnded,
	EventCountdown:               decodeCountdown,
	EventPlayerReadyUpdate:       decodePlayerReady,
	EventPlayerKicked:            decodePlayerKicked,
	EventKickedFromSession:       decodeKickedFromSession,
	EventAnswerFeedback:          decodeAnswerFeedback,
}

// Decode turns a frame into a typed event. Unknown types and malformed
// payloads come back as *domain.ProtocolError.
func Decode(f Frame) (Event, error) {
	dec, ok := decoders[EventType(f.Type)]
	if !ok {
		return nil, &domain.ProtocolError{Type: f.Type, Err: domain.ErrUnknownEvent}
	}
	ev, err := dec(f.Payload)
	if err != nil {
		return nil, &domain.ProtocolError{Type: f.Type, Err: err}
	}
	return ev, nil
}

// Known reports whether t belongs to the protocol.
func Known(t EventType) bool {
	_, ok := decoders[t]
	return ok
}

// EventTypes lists every inbound event type in a stable order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(decoders))
	for t := range decoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type wireOption struct {
	domain.Option
	exposes bool
}

func (o *wireOption) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		o.Text = text
		return nil
	}
	var obj struct {
		Text      string `json:"text"`
		ImageURL  string `json:"imageUrl"`
		IsCorrect *bool  `json:"isCorrect"`
		Correct   *bool  `json:"correct"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	o.Text = obj.Text
	o.ImageURL = obj.ImageURL
	o.exposes = obj.IsCorrect != nil || obj.Correct != nil
	return nil
}

type wireQuestion struct {
	Question      string          `json:"question"`
	Text          string          `json:"text"`
	Options       []wireOption    `json:"options"`
	TimeLimit     int             `json:"timeLimit"`
	Points        int             `json:"points"`
	ImageURL      string          `json:"imageUrl"`
	Hint          string          `json:"hint"`
	CorrectIndex  *int            `json:"correctIndex"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
}

func (w *wireQuestion) toDomain(index int) (domain.Question, error) {
	if w.CorrectIndex != nil || present(w.CorrectAnswer) {
		return domain.Question{}, domain.ErrAnswerExposed
	}
	options := make([]domain.Option, 0, len(w.Options))
	for _, opt := range w.Options {
		if opt.exposes {
			return domain.Question{}, domain.ErrAnswerExposed
		}
		options = append(options, opt.Option)
	}
	if len(options) < 2 {
		return domain.Question{}, fmt.Errorf("question %d has %d options", index, len(options))
	}
	prompt := w.Question
	if prompt == "" {
		prompt = w.Text
	}
	return domain.Question{
		Index:     index,
		Prompt:    prompt,
		Options:   options,
		TimeLimit: w.TimeLimit,
		Points:    w.Points,
		ImageURL:  w.ImageURL,
		Hint:      w.Hint,
	}, nil
}

type wireParticipant struct {
	UserID         string          `json:"userId"`
	Username       string          `json:"username"`
	DisplayName    string          `json:"displayName"`
	Score          int             `json:"score"`
	CorrectAnswers int             `json:"correctAnswers"`
	PowerUps       json.RawMessage `json:"powerups"`
	Status         string          `json:"status"`
	Connected      *bool           `json:"connected"`
	IsHost         bool            `json:"isHost"`
	IsReady        bool            `json:"isReady"`
}

func (w wireParticipant) toDomain() domain.Participant {
	name := w.Username
	if name == "" {
		name = w.DisplayName
	}
	connected := w.Status != "disconnected"
	if w.Connected != nil {
		connected = *w.Connected
	}
	return domain.Participant{
		UserID:         w.UserID,
		Username:       name,
		Score:          w.Score,
		CorrectAnswers: w.CorrectAnswers,
		PowerUps:       decodePowerUpCounts(w.PowerUps),
		Connected:      connected,
		Ready:          w.IsReady || w.Status == "ready",
		IsHost:         w.IsHost,
	}
}

// decodePowerUpCounts accepts either {"50-50": 1} or [{"type":"50-50","count":1}].
func decodePowerUpCounts(raw json.RawMessage) map[string]int {
	if !present(raw) {
		return nil
	}
	counts := map[string]int{}
	if err := json.Unmarshal(raw, &counts); err == nil {
		return counts
	}
	var list []struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	counts = make(map[string]int, len(list))
	for _, item := range list {
		counts[item.Type] += item.Count
	}
	return counts
}

func decodeParticipantJoined(raw json.RawMessage) (Event, error) {
	var w struct {
		Participant *wireParticipant `json:"participant"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Participant == nil {
		return nil, errors.New("missing participant")
	}
	return ParticipantJoined{Participant: w.Participant.toDomain()}, nil
}

func decodeParticipantDisconnected(raw json.RawMessage) (Event, error) {
	var w struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.UserID == "" && w.Username == "" {
		return nil, errors.New("missing userId and username")
	}
	return ParticipantDisconnected{UserID: w.UserID, Username: w.Username}, nil
}

func questionStartedDecoder(kind EventType) decoder {
	return func(raw json.RawMessage) (Event, error) {
		var w struct {
			Question       *wireQuestion `json:"question"`
			QuestionIndex  *int          `json:"questionIndex"`
			TimeRemaining  int           `json:"timeRemaining"`
			TotalQuestions int           `json:"totalQuestions"`
		}
		if err := unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if w.Question == nil || w.QuestionIndex == nil {
			return nil, errors.New("missing question or questionIndex")
		}
		if *w.QuestionIndex < 0 {
			return nil, fmt.Errorf("negative questionIndex %d", *w.QuestionIndex)
		}
		q, err := w.Question.toDomain(*w.QuestionIndex)
		if err != nil {
			return nil, err
		}
		return QuestionStarted{
			Kind:           kind,
			Question:       q,
			QuestionIndex:  *w.QuestionIndex,
			TimeRemaining:  w.TimeRemaining,
			TotalQuestions: w.TotalQuestions,
		}, nil
	}
}

func decodeTimerUpdate(raw json.RawMessage) (Event, error) {
	var w struct {
		TimeRemaining *int `json:"timeRemaining"`
		QuestionIndex *int `json:"questionIndex"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.TimeRemaining == nil {
		return nil, errors.New("missing timeRemaining")
	}
	remaining := *w.TimeRemaining
	if remaining < 0 {
		remaining = 0
	}
	return TimerUpdate{TimeRemaining: remaining, QuestionIndex: w.QuestionIndex}, nil
}

func decodeQuestionCompleted(raw json.RawMessage) (Event, error) {
	var w struct {
		QuestionIndex *int            `json:"questionIndex"`
		CorrectIndex  *int            `json:"correctIndex"`
		CorrectAnswer json.RawMessage `json:"correctAnswer"`
		Explanation   string          `json:"explanation"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	ev := QuestionCompleted{QuestionIndex: w.QuestionIndex, CorrectIndex: w.CorrectIndex, Explanation: w.Explanation}
	if ev.CorrectIndex == nil && present(w.CorrectAnswer) {
		var idx int
		if err := json.Unmarshal(w.CorrectAnswer, &idx); err == nil {
			ev.CorrectIndex = &idx
		} else if err := json.Unmarshal(w.CorrectAnswer, &ev.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("correctAnswer: %w", err)
		}
	}
	if ev.CorrectIndex == nil && ev.CorrectAnswer == "" {
		return nil, errors.New("missing correctIndex and correctAnswer")
	}
	return ev, nil
}

func decodeQuestionTimeUp(raw json.RawMessage) (Event, error) {
	var w struct {
		QuestionIndex *int `json:"questionIndex"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return QuestionTimeUp{QuestionIndex: w.QuestionIndex}, nil
}

type wireEntry struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

func toEntries(in []wireEntry) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(in))
	for _, e := range in {
		out = append(out, domain.LeaderboardEntry{
			UserID:         e.UserID,
			Username:       e.Username,
			Score:          e.Score,
			CorrectAnswers: e.CorrectAnswers,
		})
	}
	return out
}

func decodeQuizCompleted(raw json.RawMessage) (Event, error) {
	var w struct {
		FinalResults struct {
			SessionID      string      `json:"sessionId"`
			QuizID         string      `json:"quizId"`
			TotalQuestions int         `json:"totalQuestions"`
			Leaderboard    []wireEntry `json:"leaderboard"`
		} `json:"finalResults"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return QuizCompleted{Results: domain.FinalResults{
		SessionID:      w.FinalResults.SessionID,
		QuizID:         w.FinalResults.QuizID,
		TotalQuestions: w.FinalResults.TotalQuestions,
		Leaderboard:    toEntries(w.FinalResults.Leaderboard),
	}}, nil
}

func decodeLeaderboardUpdate(raw json.RawMessage) (Event, error) {
	var w struct {
		Leaderboard []wireEntry `json:"leaderboard"`
		Players     []wireEntry `json:"players"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	entries := w.Leaderboard
	if entries == nil {
		entries = w.Players
	}
	if entries == nil {
		return nil, errors.New("missing leaderboard")
	}
	return LeaderboardUpdate{Entries: toEntries(entries)}, nil
}

func decodeQuizResumed(raw json.RawMessage) (Event, error) {
	var w struct {
		TimeRemaining *int `json:"timeRemaining"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return QuizResumed{TimeRemaining: w.TimeRemaining}, nil
}

func decodeChatToggled(raw json.RawMessage) (Event, error) {
	var w struct {
		Enabled *bool `json:"enabled"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Enabled == nil {
		return nil, errors.New("missing enabled")
	}
	return ChatToggled{Enabled: *w.Enabled}, nil
}

func decodeChatMessage(raw json.RawMessage) (Event, error) {
	var w struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Username  string    `json:"username"`
		Message   string    `json:"message"`
		Text      string    `json:"text"`
		IsHost    bool      `json:"isHost"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	body := w.Message
	if body == "" {
		body = w.Text
	}
	if body == "" {
		return nil, errors.New("empty chat message")
	}
	return ChatMessageReceived{Message: domain.ChatMessage{
		ID:        w.ID,
		UserID:    w.UserID,
		Username:  w.Username,
		Message:   body,
		IsHost:    w.IsHost,
		Timestamp: w.Timestamp,
	}}, nil
}

func decodeReaction(raw json.RawMessage) (Event, error) {
	var r domain.Reaction
	if err := unmarshal(raw, &r); err != nil {
		return nil, err
	}
	if r.Emoji == "" {
		return nil, errors.New("missing emoji")
	}
	return ReactionReceived{Reaction: r}, nil
}

func decodeSessionEnded(raw json.RawMessage) (Event, error) {
	var w struct {
		SessionID string `json:"sessionId"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return SessionEndedByHost{SessionID: w.SessionID}, nil
}

func decodeCountdown(raw json.RawMessage) (Event, error) {
	var w struct {
		Countdown *int `json:"countdown"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Countdown == nil {
		return nil, errors.New("missing countdown")
	}
	return Countdown{Value: *w.Countdown}, nil
}

func decodePlayerReady(raw json.RawMessage) (Event, error) {
	var w struct {
		UserID  string `json:"userId"`
		IsReady bool   `json:"isReady"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.UserID == "" {
		return nil, errors.New("missing userId")
	}
	return PlayerReadyUpdate{UserID: w.UserID, IsReady: w.IsReady}, nil
}

func decodePlayerKicked(raw json.RawMessage) (Event, error) {
	var w struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.UserID == "" {
		return nil, errors.New("missing userId")
	}
	return PlayerKicked{UserID: w.UserID, Username: w.Username}, nil
}

func decodeKickedFromSession(raw json.RawMessage) (Event, error) {
	var w struct {
		Reason string `json:"reason"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return KickedFromSession{Reason: w.Reason}, nil
}

func decodeAnswerFeedback(raw json.RawMessage) (Event, error) {
	var w struct {
		QuestionIndex *int `json:"questionIndex"`
		IsCorrect     bool `json:"isCorrect"`
		Points        int  `json:"points"`
		Streak        int  `json:"streak"`
	}
	if err := unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.QuestionIndex == nil {
		return nil, errors.New("missing questionIndex")
	}
	return AnswerFeedback{QuestionIndex: *w.QuestionIndex, IsCorrect: w.IsCorrect, Points: w.Points, Streak: w.Streak}, nil
}
