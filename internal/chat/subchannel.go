// Package chat is the room's chat and reaction stream. It shares the
// transport with the game but never looks at the game phase.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"livequiz/internal/domain"
	"livequiz/internal/fanout"
	"livequiz/internal/protocol"
)

// MaxMessageLength bounds an outgoing chat line, in runes.
const MaxMessageLength = 500

// maxReactions is how many recent reactions are kept for display.
const maxReactions = 50

var (
	ErrEmptyMessage   = errors.New("empty chat message")
	ErrMessageTooLong = errors.New("chat message too long")
	ErrEmptyEmoji     = errors.New("empty reaction")
)

// Channel is the part of the transport the subchannel uses.
type Channel interface {
	Subscribe(typ protocol.EventType, handler func(protocol.Event)) (cancel func())
	Publish(ctx context.Context, typ protocol.RequestType, payload any) error
}

// Identity is who is speaking and in which room.
type Identity struct {
	RoomCode string
	UserID   string
	Username string
	IsHost   bool
}

// Snapshot is an immutable copy of the chat view.
type Snapshot struct {
	Enabled   bool
	Messages  []domain.ChatMessage
	Reactions []domain.Reaction
}

// Subchannel keeps the message history and the send switch.
type Subchannel struct {
	channel Channel
	id      Identity

	mu        sync.Mutex
	enabled   bool
	messages  []domain.ChatMessage
	reactions []domain.Reaction
	cancels   []func()
	hub       *fanout.Hub[Snapshot]
}

// New builds a detached subchannel. enabled is the room setting at join time.
func New(channel Channel, id Identity, enabled bool) *Subchannel {
	return &Subchannel{
		channel: channel,
		id:      id,
		enabled: enabled,
		hub:     fanout.New[Snapshot](8),
	}
}

// Attach subscribes to the chat events. Calling it twice is a no-op.
func (s *Subchannel) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cancels) > 0 {
		return
	}
	s.cancels = []func(){
		s.channel.Subscribe(protocol.EventChatMessage, s.handle),
		s.channel.Subscribe(protocol.EventReactionReceived, s.handle),
		s.channel.Subscribe(protocol.EventChatToggled, s.handle),
	}
}

// Detach drops every subscription and closes Updates channels. History is kept.
func (s *Subchannel) Detach() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	s.hub.Close()
}

// SetEnabled applies the room setting from an authoritative source such as a join ack.
func (s *Subchannel) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)
}

// Send posts a chat line. It fails fast while chat is disabled.
func (s *Subchannel) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return ErrEmptyMessage
	case utf8.RuneCountInString(text) > MaxMessageLength:
		return ErrMessageTooLong
	}
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return domain.Rejected(string(protocol.RequestChatMessage), domain.ErrChatDisabled)
	}
	return s.channel.Publish(ctx, protocol.RequestChatMessage, protocol.ChatMessage{
		RoomCode: s.id.RoomCode,
		UserID:   s.id.UserID,
		Username: s.id.Username,
		Message:  text,
		IsHost:   s.id.IsHost,
	})
}

// React broadcasts an emoji. Reactions are not gated by the chat switch.
func (s *Subchannel) React(ctx context.Context, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ErrEmptyEmoji
	}
	return s.channel.Publish(ctx, protocol.RequestSendReaction, protocol.SendReaction{
		RoomCode: s.id.RoomCode,
		Emoji:    emoji,
	})
}

// Enabled reports whether sending is currently allowed.
func (s *Subchannel) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Snapshot copies the current view.
func (s *Subchannel) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Updates streams snapshots after every change, starting with the current one.
func (s *Subchannel) Updates() (<-chan Snapshot, func()) {
	return s.hub.Subscribe(s.Snapshot())
}

func (s *Subchannel) handle(ev protocol.Event) {
	s.mu.Lock()
	switch e := ev.(type) {
	case protocol.ChatMessageReceived:
		s.messages = append(s.messages, e.Message)
	case protocol.ReactionReceived:
		s.reactions = append(s.reactions, e.Reaction)
		if len(s.reactions) > maxReactions {
			s.reactions = append([]domain.Reaction(nil), s.reactions[len(s.reactions)-maxReactions:]...)
		}
	case protocol.ChatToggled:
		s.enabled = e.Enabled
		log.Info().Str("room_code", s.id.RoomCode).Bool("enabled", e.Enabled).Msg("chat toggled")
	default:
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)
}

func (s *Subchannel) snapshotLocked() Snapshot {
	return Snapshot{
		Enabled:   s.enabled,
		Messages:  append([]domain.ChatMessage(nil), s.messages...),
		Reactions: append([]domain.Reaction(nil), s.reactions...),
	}
}
