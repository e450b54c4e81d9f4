package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
)

func intp(i int) *int { return &i }

func question(prompt string, options ...string) domain.Question {
	q := domain.Question{Prompt: prompt, TimeLimit: 20, Points: 100}
	for _, o := range options {
		q.Options = append(q.Options, domain.Option{Text: o})
	}
	return q
}

func started(idx int) protocol.QuestionStarted {
	kind := protocol.EventNextQuestion
	if idx == 0 {
		kind = protocol.EventQuizStarted
	}
	return protocol.QuestionStarted{
		Kind:           kind,
		Question:       question("q", "a", "b", "c", "d"),
		QuestionIndex:  idx,
		TimeRemaining:  20,
		TotalQuestions: 3,
	}
}

func lobby(t *testing.T) State {
	t.Helper()
	s, eff := Join(NewState(RoleParticipant), protocol.JoinAck{
		Session:     domain.Session{RoomCode: "ROOM1", Status: domain.StatusLobby},
		Participant: domain.Participant{UserID: "u1", Username: "ann", Connected: true},
	})
	require.Equal(t, PhaseLobby, s.Phase)
	require.False(t, eff.RequestState)
	return s
}

func reduce(t *testing.T, s State, ev protocol.Event) (State, Effects) {
	t.Helper()
	next, eff, err := Reduce(s, ev)
	require.NoError(t, err)
	return next, eff
}

func assertStale(t *testing.T, s State, ev protocol.Event) {
	t.Helper()
	next, eff, err := Reduce(s, ev)
	var staleErr *domain.StaleEventError
	require.True(t, errors.As(err, &staleErr), "want stale, got %v", err)
	assert.Equal(t, s.Phase, next.Phase)
	assert.Equal(t, s.QuestionIndex, next.QuestionIndex)
	assert.Empty(t, eff.Timer)
}

func submitted(s State, idx int) State {
	s.Selected = intp(idx)
	s.Submission = &domain.AnswerSubmission{ParticipantID: s.Self.Key(), QuestionIndex: s.QuestionIndex, SelectedIndex: idx}
	return s
}

func TestQuizStartedEntersQuestion(t *testing.T) {
	s, eff := reduce(t, lobby(t), started(0))
	assert.Equal(t, PhaseQuestion, s.Phase)
	assert.Equal(t, 0, s.QuestionIndex)
	assert.Equal(t, 3, s.TotalQuestions)
	assert.Equal(t, domain.StatusActive, s.Session.Status)
	assert.True(t, eff.NewQuestion)
	assert.Equal(t, []TimerStep{{Op: TimerStart, Value: 20}}, eff.Timer)
}

func TestTimerUpdatesSnapToLastValue(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	var eff Effects
	for _, v := range []int{19, 17, 18, 9} {
		s, eff = reduce(t, s, protocol.TimerUpdate{TimeRemaining: v})
		assert.Equal(t, []TimerStep{{Op: TimerSnap, Value: v}}, eff.Timer)
	}
	assert.Equal(t, 9, s.TimeRemaining)

	assertStale(t, s, protocol.TimerUpdate{TimeRemaining: 5, QuestionIndex: intp(3)})
}

func TestTimerUpdateOutsideQuestionIsDiscarded(t *testing.T) {
	assertStale(t, lobby(t), protocol.TimerUpdate{TimeRemaining: 5})
}

func TestLeaderboardReplacesAndRanksInOrder(t *testing.T) {
	s := lobby(t)
	s, _ = reduce(t, s, protocol.LeaderboardUpdate{Entries: []domain.LeaderboardEntry{
		{UserID: "u2", Username: "bob", Score: 300},
		{UserID: "u1", Username: "ann", Score: 200, CorrectAnswers: 2},
		{UserID: "u3", Username: "cy", Score: 100},
	}})
	board := s.Leaderboard()
	require.Len(t, board, 3)
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, "u2", board[0].UserID)
	assert.Equal(t, 200, s.Self.Score)
	assert.Equal(t, 2, s.Self.CorrectAnswers)

	s, _ = reduce(t, s, protocol.LeaderboardUpdate{Entries: []domain.LeaderboardEntry{{UserID: "u1", Score: 250}}})
	assert.Len(t, s.Leaderboard(), 1)
	assert.Equal(t, 250, s.Self.Score)
}

func TestTimeUpThenCompletedRevealsOnce(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s = submitted(s, 2)

	s, eff := reduce(t, s, protocol.QuestionTimeUp{QuestionIndex: intp(0)})
	assert.Equal(t, PhaseAnswerReveal, s.Phase)
	assert.Equal(t, []TimerStep{{Op: TimerZero}}, eff.Timer)
	assert.Nil(t, s.Reveal)

	s, _ = reduce(t, s, protocol.QuestionCompleted{QuestionIndex: intp(0), CorrectIndex: intp(2), Explanation: "because"})
	require.NotNil(t, s.Reveal)
	assert.True(t, s.Reveal.Correct)
	assert.Equal(t, "c", s.Reveal.CorrectAnswer)
	assert.Equal(t, 1, s.Streak)
	assert.Equal(t, 100, s.Reveal.Points)

	assertStale(t, s, protocol.QuestionCompleted{QuestionIndex: intp(0), CorrectIndex: intp(1)})
	assertStale(t, s, protocol.QuestionTimeUp{QuestionIndex: intp(0)})

	again, _, _ := Reduce(s, protocol.QuestionCompleted{QuestionIndex: intp(0), CorrectIndex: intp(1)})
	assert.Equal(t, 1, again.Streak)
	assert.True(t, again.Reveal.Correct)
}

func TestCompletedByTextAndWrongAnswerResetsStreak(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s = submitted(s, 1)
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectAnswer: "b"})
	assert.Equal(t, 1, s.Reveal.CorrectIndex)
	assert.Equal(t, 1, s.Streak)

	s, _ = reduce(t, s, started(1))
	assert.Nil(t, s.Submission)
	assert.Nil(t, s.Reveal)
	s = submitted(s, 0)
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectAnswer: "d"})
	assert.False(t, s.Reveal.Correct)
	assert.Equal(t, 0, s.Streak)
	assert.Equal(t, 0, s.Reveal.Points)
}

func TestMissingSubmissionResetsStreak(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s.Streak = 4
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectIndex: intp(0)})
	assert.Equal(t, 0, s.Streak)
	assert.Nil(t, s.Reveal.Submitted)
}

func TestDoublePointsAndFeedbackOnlyChangeEstimate(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s = submitted(s, 3)
	s.Boost = 2
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectIndex: intp(3)})
	assert.Equal(t, 200, s.Reveal.Points)
	assert.Equal(t, 0, s.Self.Score)

	s, _ = reduce(t, s, protocol.AnswerFeedback{QuestionIndex: 0, IsCorrect: true, Points: 140})
	assert.Equal(t, 280, s.Reveal.Points)
	assert.Equal(t, 0, s.Self.Score)
}

func TestStaleQuestionEventsAreDiscarded(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectIndex: intp(0)})
	s, _ = reduce(t, s, started(1))

	assertStale(t, s, started(0))
	assertStale(t, s, started(1))
	assertStale(t, s, protocol.QuestionCompleted{QuestionIndex: intp(0), CorrectIndex: intp(1)})
	assertStale(t, s, protocol.QuestionTimeUp{QuestionIndex: intp(0)})
	assertStale(t, s, protocol.AnswerFeedback{QuestionIndex: 0, Points: 10})
}

func TestQuizCompletedDuringQuestionFinishes(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s.Pending = &domain.AnswerSubmission{QuestionIndex: 0}
	require.Less(t, s.QuestionIndex, s.TotalQuestions-1)

	s, eff := reduce(t, s, protocol.QuizCompleted{Results: domain.FinalResults{
		TotalQuestions: 3,
		Leaderboard:    []domain.LeaderboardEntry{{UserID: "u1", Score: 50}},
	}})
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.Nil(t, s.Reveal)
	assert.Nil(t, s.Pending)
	assert.Equal(t, 50, s.Self.Score)
	assert.Equal(t, []TimerStep{{Op: TimerStop}}, eff.Timer)

	assertStale(t, s, protocol.QuizCompleted{})
	assertStale(t, s, started(1))
	assertStale(t, s, protocol.QuestionCompleted{CorrectIndex: intp(0)})
}

func TestPauseAndResumeRestorePhase(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	assertStale(t, lobby(t), protocol.QuizPaused{})

	s, eff := reduce(t, s, protocol.QuizPaused{})
	assert.Equal(t, PhasePaused, s.Phase)
	assert.Equal(t, []TimerStep{{Op: TimerPause}}, eff.Timer)
	assertStale(t, s, protocol.QuizPaused{})

	// timer pushes during a pause still snap
	s, _ = reduce(t, s, protocol.TimerUpdate{TimeRemaining: 12})

	s, eff = reduce(t, s, protocol.QuizResumed{TimeRemaining: intp(11)})
	assert.Equal(t, PhaseQuestion, s.Phase)
	assert.Equal(t, 11, s.TimeRemaining)
	assert.Equal(t, []TimerStep{{Op: TimerSnap, Value: 11}, {Op: TimerResume}}, eff.Timer)

	s, _ = reduce(t, s, protocol.QuestionTimeUp{})
	s, _ = reduce(t, s, protocol.QuizPaused{})
	s, _ = reduce(t, s, protocol.QuizResumed{TimeRemaining: intp(11)})
	assert.Equal(t, PhaseAnswerReveal, s.Phase)
}

func TestCompletedWhilePausedReveals(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s, _ = reduce(t, s, protocol.QuizPaused{})
	s, _ = reduce(t, s, protocol.QuestionCompleted{CorrectIndex: intp(1)})
	assert.Equal(t, PhaseAnswerReveal, s.Phase)
	assert.Empty(t, s.ResumePhase)
}

func TestRosterEvents(t *testing.T) {
	s := lobby(t)
	s, _ = reduce(t, s, protocol.ParticipantJoined{Participant: domain.Participant{UserID: "u2", Username: "bob"}})
	s, _ = reduce(t, s, protocol.PlayerReadyUpdate{UserID: "u1", IsReady: true})
	assert.True(t, s.Self.Ready)
	require.Len(t, s.Participants(), 2)

	s, _ = reduce(t, s, protocol.PlayerKicked{UserID: "u2", Username: "bob"})
	assert.Len(t, s.Participants(), 1)

	s, _ = reduce(t, s, protocol.ParticipantDisconnected{UserID: "u1"})
	assert.Empty(t, s.Participants())
}

func TestKickOfSelfTearsDown(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s, eff := reduce(t, s, protocol.PlayerKicked{UserID: "u1"})
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.True(t, eff.Teardown)

	s, eff = reduce(t, lobby(t), protocol.KickedFromSession{Reason: "spam"})
	assert.Equal(t, "kicked from session: spam", s.EndReason)
	assert.True(t, eff.Teardown)
}

func TestSessionEndedByHost(t *testing.T) {
	s, eff := reduce(t, lobby(t), protocol.SessionEndedByHost{})
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.True(t, eff.Teardown)
	assertStale(t, s, protocol.SessionEndedByHost{})
}

func TestCountdownOnlyInLobby(t *testing.T) {
	s, _ := reduce(t, lobby(t), protocol.Countdown{Value: 3})
	assert.Equal(t, 3, s.Countdown)
	s, _ = reduce(t, s, started(0))
	assert.Zero(t, s.Countdown)
	assertStale(t, s, protocol.Countdown{Value: 2})
}

func TestChatEventsLeaveGameStateAlone(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	next, _ := reduce(t, s, protocol.ChatMessageReceived{Message: domain.ChatMessage{Message: "hi"}})
	assert.Equal(t, s.Phase, next.Phase)
	next, _ = reduce(t, next, protocol.ChatToggled{Enabled: true})
	assert.True(t, next.Session.Settings.ChatEnabled)
	assert.Equal(t, PhaseQuestion, next.Phase)
}

func TestReduceDoesNotModifyPrevious(t *testing.T) {
	s := lobby(t)
	s, _ = reduce(t, s, protocol.LeaderboardUpdate{Entries: []domain.LeaderboardEntry{{UserID: "u1", Score: 1}}})
	before := s.Leaderboard()
	_, _ = reduce(t, s, protocol.LeaderboardUpdate{Entries: []domain.LeaderboardEntry{{UserID: "u9", Score: 9}}})
	assert.Equal(t, before, s.Leaderboard())
	_, _ = reduce(t, s, protocol.ParticipantJoined{Participant: domain.Participant{UserID: "u9"}})
	assert.Len(t, s.Participants(), 1)
}

func TestLateJoinWithSnapshotSkipsLobby(t *testing.T) {
	s, eff := Join(NewState(RoleParticipant), protocol.JoinAck{
		Session:     domain.Session{RoomCode: "ROOM1", Status: domain.StatusActive},
		Participant: domain.Participant{UserID: "u1"},
		Current:     &protocol.QuestionSnapshot{Question: question("q", "a", "b"), QuestionIndex: 2, TimeRemaining: 7, TotalQuestions: 5},
	})
	assert.Equal(t, PhaseQuestion, s.Phase)
	assert.Equal(t, 2, s.QuestionIndex)
	assert.Equal(t, 7, s.TimeRemaining)
	assert.Equal(t, 5, s.TotalQuestions)
	assert.True(t, eff.NewQuestion)
	assert.Equal(t, []TimerStep{{Op: TimerStart, Value: 7}}, eff.Timer)
}

func TestLateJoinWithoutSnapshotRequestsState(t *testing.T) {
	s, eff := Join(NewState(RoleParticipant), protocol.JoinAck{
		Session: domain.Session{RoomCode: "ROOM1", Status: domain.StatusActive},
	})
	assert.Equal(t, PhaseConnecting, s.Phase)
	assert.True(t, eff.RequestState)

	s, eff = Sync(s, protocol.QuestionSnapshot{Question: question("q", "a", "b"), QuestionIndex: 1, TimeRemaining: 4}, false)
	assert.Equal(t, PhaseQuestion, s.Phase)
	assert.Equal(t, []TimerStep{{Op: TimerStart, Value: 4}}, eff.Timer)
}

func TestJoinIntoPausedGame(t *testing.T) {
	s, eff := Join(NewState(RoleParticipant), protocol.JoinAck{
		Session: domain.Session{RoomCode: "ROOM1", Status: domain.StatusPaused},
		Current: &protocol.QuestionSnapshot{Question: question("q", "a", "b"), QuestionIndex: 0, TimeRemaining: 9},
	})
	assert.Equal(t, PhasePaused, s.Phase)
	assert.Equal(t, PhaseQuestion, s.ResumePhase)
	assert.Equal(t, []TimerStep{{Op: TimerStart, Value: 9}, {Op: TimerPause}}, eff.Timer)
}

func TestJoinAckOvertakenByQuestionDoesNotRegress(t *testing.T) {
	s, _ := reduce(t, NewState(RoleParticipant), started(0))
	s, _ = Join(s, protocol.JoinAck{Session: domain.Session{RoomCode: "ROOM1", Status: domain.StatusLobby}})
	assert.Equal(t, PhaseQuestion, s.Phase)
}

func TestRejoinKeepsSubmission(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s = submitted(s, 1)

	s, eff := Link(s, protocol.LinkReconnecting, nil)
	assert.False(t, eff.Rejoin)
	s, eff = Link(s, protocol.LinkConnected, nil)
	assert.True(t, eff.Rejoin)

	s, eff = Join(s, protocol.JoinAck{
		Session:     domain.Session{RoomCode: "ROOM1", Status: domain.StatusActive},
		Participant: domain.Participant{UserID: "u1"},
		Current:     &protocol.QuestionSnapshot{Question: question("q", "a", "b", "c", "d"), QuestionIndex: 0, TimeRemaining: 6},
	})
	assert.Equal(t, PhaseQuestion, s.Phase)
	require.NotNil(t, s.Submission)
	assert.Equal(t, 1, s.Submission.SelectedIndex)
	assert.False(t, eff.NewQuestion)
	assert.Equal(t, []TimerStep{{Op: TimerSnap, Value: 6}}, eff.Timer)

	s, _ = Sync(s, protocol.QuestionSnapshot{Question: question("old", "a", "b"), QuestionIndex: 0}, false)
	assert.Equal(t, "q", s.Question.Prompt)
}

func TestExhaustedLinkEntersDisconnected(t *testing.T) {
	s, _ := reduce(t, lobby(t), started(0))
	s, eff := Link(s, protocol.LinkDisconnected, domain.ErrReconnectExhausted)
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.Equal(t, []TimerStep{{Op: TimerStop}}, eff.Timer)

	done, _ := reduce(t, lobby(t), protocol.SessionEndedByHost{})
	done, _ = Link(done, protocol.LinkDisconnected, domain.ErrReconnectExhausted)
	assert.Equal(t, PhaseFinished, done.Phase)
}

func TestReplayCollectsDiscarded(t *testing.T) {
	s, discarded := Replay(lobby(t), []protocol.Event{
		started(0),
		protocol.TimerUpdate{TimeRemaining: 10},
		protocol.QuestionCompleted{CorrectIndex: intp(0)},
		protocol.QuestionCompleted{CorrectIndex: intp(0)},
		started(1),
		started(0),
	})
	assert.Equal(t, 1, s.QuestionIndex)
	assert.Len(t, discarded, 2)
}

func TestReplayJournal(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}
	entries := []domain.JournalEntry{
		{Seq: 1, Type: "join-session", Payload: raw(map[string]any{
			"success":     true,
			"session":     map[string]any{"roomCode": "ROOM1", "status": "waiting"},
			"participant": map[string]any{"userId": "u1", "username": "ann"},
		})},
		{Seq: 2, Type: "quiz-started", Payload: raw(map[string]any{
			"question":      map[string]any{"question": "2+2?", "options": []string{"3", "4"}, "timeLimit": 10},
			"questionIndex": 0, "timeRemaining": 10, "totalQuestions": 1,
		})},
		{Seq: 3, Type: "mystery", Payload: raw(map[string]any{})},
		{Seq: 4, Type: "question-completed", Payload: raw(map[string]any{"questionIndex": 0, "correctAnswer": "4"})},
		{Seq: 5, Type: "leaderboard-update", Payload: raw(map[string]any{"leaderboard": []map[string]any{{"userId": "u1", "score": 100}}})},
		{Seq: 6, Type: "quiz-completed", Payload: raw(map[string]any{"finalResults": map[string]any{"totalQuestions": 1}})},
	}
	s, discarded := ReplayJournal(RoleParticipant, entries)
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.Equal(t, 100, s.Self.Score)
	require.Len(t, discarded, 1)
	assert.ErrorIs(t, discarded[0], domain.ErrUnknownEvent)
}
