package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"livequiz/internal/chat"
	"livequiz/internal/config"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"
	"livequiz/internal/protocol"
	"livequiz/internal/roomtest"
	"livequiz/internal/scoring"
	"livequiz/internal/session"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func intp(v int) *int { return &v }

func TestRenderQuestion(t *testing.T) {
	snap := session.Snapshot{
		State: session.State{
			Phase:          session.PhaseQuestion,
			Session:        domain.Session{RoomCode: "ROOM1"},
			QuestionIndex:  1,
			TotalQuestions: 5,
			Question: &domain.Question{
				Prompt:  "capital of France?",
				Options: []domain.Option{{Text: "Rome"}, {Text: "Paris"}, {Text: "Oslo"}, {Text: "Lima"}},
			},
			Selected: intp(1),
			Hidden:   []int{0, 3},
		},
		Remaining: 12,
		Frozen:    true,
	}
	var buf bytes.Buffer
	renderSnapshot(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "[question] room ROOM1")
	assert.Contains(t, out, "Q2/5  12s (frozen)")
	assert.Contains(t, out, "2) Paris  <-")
	assert.Contains(t, out, "1) Rome  (removed)")
	assert.NotContains(t, out, "3) Oslo  (removed)")
}

func TestRenderRevealAndBoard(t *testing.T) {
	board := scoring.NewBoard([]domain.LeaderboardEntry{
		{UserID: "u2", Username: "bob", Score: 300, Rank: 1},
		{UserID: "u1", Username: "ann", Score: 200, Rank: 2},
	})
	snap := session.Snapshot{State: session.State{
		Phase:    session.PhaseAnswerReveal,
		Self:     domain.Participant{UserID: "u1", Username: "ann"},
		Question: &domain.Question{Prompt: "2+2", Options: []domain.Option{{Text: "3"}, {Text: "4"}}},
		Reveal:   &session.Reveal{CorrectIndex: 1, Submitted: intp(1), Correct: true, Points: 200},
		Streak:   2,
		Board:    board,
	}}
	var buf bytes.Buffer
	renderSnapshot(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "answer: 4")
	assert.Contains(t, out, "correct +200  streak 2")
	assert.Contains(t, out, "1. bob")
	assert.Contains(t, out, "2. ann")
}

func chatSnap(enabled bool, msgs ...string) chat.Snapshot {
	snap := chat.Snapshot{Enabled: enabled}
	for _, m := range msgs {
		snap.Messages = append(snap.Messages, domain.ChatMessage{Username: "ann", Message: m})
	}
	return snap
}

func TestRenderChatShowsOnlyNewLines(t *testing.T) {
	prev := chatSnap(true, "hi")
	next := chatSnap(false, "hi", "hello")
	next.Reactions = []domain.Reaction{{Username: "bob", Emoji: "🎉"}}

	var buf bytes.Buffer
	renderChat(&buf, prev, next)
	out := buf.String()
	assert.NotContains(t, out, ": hi\n")
	assert.Contains(t, out, "ann: hello")
	assert.Contains(t, out, "bob 🎉")
	assert.Contains(t, out, "chat off")
}

func TestDriveRunsCommandsUntilQuit(t *testing.T) {
	var got []string
	set := commandSet{commands: map[string]command{
		"echo": {usage: "echo args", run: func(_ context.Context, args []string) error {
			got = append(got, strings.Join(args, " "))
			return nil
		}},
	}}
	lines := make(chan string, 8)
	for _, l := range []string{"echo a b", "", "ECHO c", "bogus", "help", "quit", "echo never"} {
		lines <- l
	}
	var buf bytes.Buffer
	err := drive(context.Background(), lines, &buf, set)

	assert.ErrorIs(t, err, errQuit)
	assert.Equal(t, []string{"a b", "c"}, got)
	assert.Contains(t, buf.String(), `unknown command "bogus"`)
	assert.Contains(t, buf.String(), "echo       echo args")
}

func TestDriveStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, drive(ctx, make(chan string), io.Discard, commandSet{}))
}

func TestReplayRooms(t *testing.T) {
	journal := memory.NewJournal()
	ctx := context.Background()
	frames := []struct {
		typ     string
		payload any
	}{
		{"join-session", map[string]any{
			"success":     true,
			"session":     map[string]any{"roomCode": "ROOM1", "status": "waiting", "totalQuestions": 1},
			"participant": map[string]any{"userId": "u1", "username": "ann"},
		}},
		{"quiz-completed", map[string]any{
			"finalResults": map[string]any{"leaderboard": []map[string]any{{"userId": "u1", "username": "ann", "score": 400, "rank": 1}}},
		}},
		{"bogus-frame", map[string]any{}},
	}
	for i, f := range frames {
		raw, err := json.Marshal(f.payload)
		require.NoError(t, err)
		require.NoError(t, journal.Append(ctx, domain.JournalEntry{RoomCode: "ROOM1", Seq: int64(i + 1), Type: f.typ, Payload: raw}))
	}

	var buf bytes.Buffer
	require.NoError(t, replayRooms(ctx, memory.NewJournalCache(journal, time.Minute), session.RoleParticipant, []string{"room1"}, &buf))
	out := buf.String()
	assert.Contains(t, out, "[finished] room ROOM1")
	assert.Contains(t, out, "1 entries skipped")

	err := replayRooms(ctx, journal, session.RoleParticipant, []string{"NOPE"}, io.Discard)
	assert.ErrorIs(t, err, domain.ErrJournalNotFound)
}

func TestSessionFlagsRequireRoom(t *testing.T) {
	f := &sessionFlags{}
	_, err := f.apply(config.Default())
	assert.Error(t, err)

	f.room = "abc123"
	cfg, err := f.apply(config.Default())
	require.NoError(t, err)
	assert.Equal(t, "ABC123", cfg.Server.RoomCode)
}

func testConfig(srv *roomtest.Server) config.Config {
	cfg := config.Default()
	cfg.Server.URL = srv.URL()
	cfg.Server.RoomCode = "ROOM1"
	cfg.Server.DisplayName = "ann"
	cfg.Transport.ReconnectAttempts = 1
	cfg.Transport.ReconnectInitial = "10ms"
	return cfg
}

func joinAck(host bool) roomtest.Handler {
	return func(roomtest.Request) any {
		return map[string]any{
			"success": true,
			"session": map[string]any{"roomCode": "ROOM1", "status": "waiting", "totalQuestions": 3,
				"settings": map[string]any{"chatEnabled": true}},
			"participant": map[string]any{"userId": "u1", "username": "ann", "isHost": host},
		}
	}
}

// runAgainst starts run in the background with a piped stdin.
func runAgainst(t *testing.T, run func(context.Context, config.Config, io.Reader, io.Writer) error, cfg config.Config) (*io.PipeWriter, *bytes.Buffer, <-chan error) {
	t.Helper()
	in, stdin := io.Pipe()
	t.Cleanup(func() { _ = stdin.Close() })
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, in, &out) }()
	return stdin, &out, done
}

func TestPlaySendsReadyAndStopsWhenSessionEnds(t *testing.T) {
	srv := roomtest.New("")
	t.Cleanup(srv.Close)
	srv.Handle(protocol.RequestJoinSession, joinAck(false))

	stdin, out, done := runAgainst(t, runPlay, testConfig(srv))
	_, ok := srv.WaitRequest(protocol.RequestJoinSession, 3*time.Second)
	require.True(t, ok)

	_, err := io.WriteString(stdin, "ready\n")
	require.NoError(t, err)
	req, ok := srv.WaitRequest(protocol.RequestPlayerReady, 3*time.Second)
	require.True(t, ok)
	var ready protocol.PlayerReady
	require.NoError(t, req.Decode(&ready))
	assert.True(t, ready.IsReady)

	srv.Broadcast(protocol.EventSessionEndedByHost, map[string]any{"message": "bye"})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("play did not return")
	}
	assert.Contains(t, out.String(), "[finished]")
}

func TestHostStartsQuiz(t *testing.T) {
	srv := roomtest.New("")
	t.Cleanup(srv.Close)
	srv.Handle(protocol.RequestJoinSession, joinAck(true))

	stdin, _, done := runAgainst(t, runHost, testConfig(srv))
	_, ok := srv.WaitRequest(protocol.RequestJoinSession, 3*time.Second)
	require.True(t, ok)

	_, err := io.WriteString(stdin, "start\n")
	require.NoError(t, err)
	_, ok = srv.WaitRequest(protocol.RequestStartQuiz, 3*time.Second)
	require.True(t, ok)

	_, err = io.WriteString(stdin, "quit\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("host did not return")
	}
}
