package session

import (
	"context"

	"github.com/rs/zerolog/log"
	"livequiz/internal/protocol"
)

// Host is the controller of the room's owner. Administrative commands never
// advance question or score state locally; only the kick overlay is optimistic.
type Host struct {
	*Controller
}

// NewHost wires a host controller onto t.
func NewHost(t Transport, opts Options) *Host {
	return &Host{Controller: newController(t, RoleHost, opts)}
}

// Join connects and enters the room as its host.
func (h *Host) Join(ctx context.Context) error {
	return h.join(ctx)
}

// Start begins the quiz. The phase moves on quiz-started.
func (h *Host) Start(ctx context.Context) error {
	return h.command(ctx, protocol.RequestStartQuiz, protocol.RoomCommand{RoomCode: h.roomCode()}, PhaseLobby)
}

// ForceNext skips to the next question.
func (h *Host) ForceNext(ctx context.Context) error {
	return h.command(ctx, protocol.RequestNextQuestion, protocol.RoomCommand{RoomCode: h.roomCode()},
		PhaseQuestion, PhaseAnswerReveal, PhasePaused)
}

// End finishes the session for everyone.
func (h *Host) End(ctx context.Context) error {
	return h.command(ctx, protocol.RequestEndSession, protocol.RoomCommand{RoomCode: h.roomCode()},
		PhaseLobby, PhaseQuestion, PhaseAnswerReveal, PhasePaused)
}

func (h *Host) Pause(ctx context.Context) error {
	return h.command(ctx, protocol.RequestPauseQuiz, protocol.RoomCommand{RoomCode: h.roomCode()},
		PhaseQuestion, PhaseAnswerReveal)
}

func (h *Host) Resume(ctx context.Context) error {
	return h.command(ctx, protocol.RequestResumeQuiz, protocol.RoomCommand{RoomCode: h.roomCode()}, PhasePaused)
}

// Kick hides userID from the roster at once and restores it if the server
// refuses. The authoritative removal arrives as player-kicked.
func (h *Host) Kick(ctx context.Context, userID string) error {
	h.mu.Lock()
	h.state.Roster = h.state.Roster.MarkKicked(userID)
	room := h.state.Session.RoomCode
	h.mu.Unlock()
	h.publish()

	if err := h.command(ctx, protocol.RequestKickPlayer, protocol.KickPlayer{RoomCode: room, UserID: userID}); err != nil {
		h.mu.Lock()
		h.state.Roster = h.state.Roster.RevertKick(userID)
		h.mu.Unlock()
		h.publish()
		log.Warn().Err(err).Str("user_id", userID).Msg("kick reverted")
		return err
	}
	return nil
}

// ToggleChat switches room chat. The local flag follows chat-toggled.
func (h *Host) ToggleChat(ctx context.Context, enabled bool) error {
	return h.command(ctx, protocol.RequestToggleChat, protocol.ToggleChat{RoomCode: h.roomCode(), Enabled: enabled})
}
