package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"livequiz/internal/chat"
	"livequiz/internal/domain"
	"livequiz/internal/fanout"
	"livequiz/internal/powerup"
	"livequiz/internal/protocol"
	"livequiz/internal/timer"
)

// Transport is what a controller needs from the channel.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, typ protocol.RequestType, payload any) (protocol.Ack, error)
	Publish(ctx context.Context, typ protocol.RequestType, payload any) error
	Subscribe(typ protocol.EventType, handler func(protocol.Event)) (cancel func())
	OnStatus(fn func(protocol.LinkStatus, error)) (cancel func())
}

// Options configure a controller.
type Options struct {
	RoomCode    string
	DisplayName string

	Clock      clockwork.Clock
	Tick       time.Duration
	FreezeFor  time.Duration
	AutoSubmit bool
	// TimeLimit stands in for a question that arrives without one; it
	// only affects the reported timeTaken.
	TimeLimit time.Duration
	// PowerUps are the starting counts, replaced by any the join ack carries.
	PowerUps map[string]int
	// Ledger is optional; without one, at-most-once holds for this process only.
	Ledger Ledger
	// Journal, when set, records every inbound frame and state-bearing ack.
	Journal Journal
}

type tapper interface {
	Tap(fn func(protocol.Frame)) (cancel func())
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	State
	Remaining int
	Frozen    bool
	PowerUps  powerup.State
}

// Controller is the part shared by the host and participant variants: it
// subscribes to the transport, folds events through Reduce and drives the
// countdown.
type Controller struct {
	transport Transport
	opts      Options
	clock     clockwork.Clock
	timer     *timer.Reconciler
	powerups  *powerup.Manager
	hub       *fanout.Hub[Snapshot]
	ctx       context.Context
	stop      context.CancelFunc
	seq       atomic.Int64

	mu        sync.Mutex
	state     State
	chat      *chat.Subchannel
	cancels   []func()
	closed    bool
	startedAt time.Time
	onZero    func()
}

func newController(t Transport, role Role, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		transport: t,
		opts:      opts,
		clock:     opts.Clock,
		hub:       fanout.New[Snapshot](8),
		ctx:       ctx,
		stop:      stop,
		state:     NewState(role),
	}
	c.timer = timer.New(opts.Clock, opts.Tick, c.tick)
	if role == RoleParticipant {
		c.powerups = powerup.NewManager(t, opts.PowerUps, opts.FreezeFor)
	}

	for _, typ := range protocol.EventTypes() {
		if typ == protocol.EventChatMessage || typ == protocol.EventReactionReceived {
			continue
		}
		c.cancels = append(c.cancels, t.Subscribe(typ, c.handle))
	}
	c.cancels = append(c.cancels, t.OnStatus(c.handleLink))
	if tp, ok := t.(tapper); ok && opts.Journal != nil {
		c.cancels = append(c.cancels, tp.Tap(func(f protocol.Frame) {
			c.record(f.Type, f.Payload)
		}))
	}
	return c
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Updates streams a snapshot after every change, starting with the current one.
func (c *Controller) Updates() (<-chan Snapshot, func()) {
	return c.hub.Subscribe(c.Snapshot())
}

// Chat is the room's chat subchannel; nil until the join ack arrives.
func (c *Controller) Chat() *chat.Subchannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

// Dispatch applies one inbound event. It is what the transport subscription
// calls, and it is safe to call directly.
func (c *Controller) Dispatch(ev protocol.Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	next, eff, err := Reduce(c.state, ev)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.applyLocked(eff)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.hub.Publish(snap)
	if eff.Teardown {
		log.Info().Str("room_code", snap.Session.RoomCode).Str("reason", snap.EndReason).Msg("session over")
		c.teardown()
	}
	return nil
}

// Leave unsubscribes every handler, stops the countdown and closes Updates.
// It is safe to call more than once.
func (c *Controller) Leave() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.teardown()
	c.stop()
	c.hub.Close()
}

func (c *Controller) teardown() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	ch := c.chat
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.timer.Stop()
	if ch != nil {
		ch.Detach()
	}
}

func (c *Controller) handle(ev protocol.Event) {
	err := c.Dispatch(ev)
	var staleErr *domain.StaleEventError
	switch {
	case err == nil:
	case errors.As(err, &staleErr):
		log.Debug().Err(err).Msg("discarded event")
	case errors.Is(err, domain.ErrClosed):
	default:
		log.Warn().Err(err).Str("type", string(ev.Type())).Msg("event not applied")
	}
}

func (c *Controller) handleLink(status protocol.LinkStatus, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	next, eff := Link(c.state, status, err)
	c.state = next
	c.applyLocked(eff)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.hub.Publish(snap)
	if eff.Rejoin {
		go func() {
			if err := c.join(c.ctx); err != nil {
				log.Error().Err(err).Str("room_code", snap.Session.RoomCode).Msg("resync after reconnect failed")
			}
		}()
	}
}

func (c *Controller) tick(remaining int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	hook := c.onZero
	c.mu.Unlock()

	c.hub.Publish(snap)
	// reaching zero is advisory; the phase only moves on question-time-up
	if remaining == 0 && hook != nil {
		hook()
	}
}

func (c *Controller) applyLocked(eff Effects) {
	for _, step := range eff.Timer {
		switch step.Op {
		case TimerStart:
			c.startedAt = c.clock.Now()
			c.timer.Start(step.Value)
		case TimerSnap:
			c.timer.Snap(step.Value)
		case TimerZero:
			c.timer.ForceZero()
		case TimerPause:
			c.timer.Pause()
		case TimerResume:
			c.timer.Resume()
		case TimerStop:
			c.timer.Stop()
		}
	}
	if eff.NewQuestion && c.powerups != nil {
		c.powerups.ResetQuestion(c.state.QuestionIndex)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     c.state,
		Remaining: c.timer.Remaining(),
		Frozen:    c.timer.Frozen(),
	}
	if c.powerups != nil {
		snap.PowerUps = c.powerups.State()
	}
	return snap
}

func (c *Controller) publish() {
	c.hub.Publish(c.Snapshot())
}

// join sends join-session and folds the ack in. It is also the resync path
// after a reconnect; acknowledged answers are never re-sent.
func (c *Controller) join(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	ack, err := c.transport.Send(ctx, protocol.RequestJoinSession, protocol.JoinSession{
		RoomCode:    c.opts.RoomCode,
		DisplayName: c.opts.DisplayName,
	})
	if err != nil {
		return err
	}
	if err := ack.Err(protocol.RequestJoinSession); err != nil {
		return err
	}
	joined, err := protocol.DecodeJoinAck(ack)
	if err != nil {
		return err
	}
	c.record(string(protocol.RequestJoinSession), ack.Raw)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	next, eff := Join(c.state, joined)
	c.state = next
	if c.chat == nil {
		c.chat = chat.New(c.transport, chat.Identity{
			RoomCode: next.Session.RoomCode,
			UserID:   next.Self.UserID,
			Username: next.Self.Username,
			IsHost:   next.Role == RoleHost || next.Self.IsHost,
		}, next.Session.Settings.ChatEnabled)
		c.chat.Attach()
	} else {
		c.chat.SetEnabled(next.Session.Settings.ChatEnabled)
	}
	if c.powerups != nil {
		if counts := joined.Participant.PowerUps; len(counts) > 0 {
			c.powerups.Reset(counts)
		}
	}
	c.applyLocked(eff)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.hub.Publish(snap)
	log.Info().
		Str("room_code", snap.Session.RoomCode).
		Str("status", string(snap.Session.Status)).
		Str("phase", string(snap.Phase)).
		Msg("joined session")

	if eff.RequestState {
		if err := c.requestState(ctx); err != nil {
			return err
		}
	}
	c.restoreSubmission(ctx)
	return nil
}

// requestState asks for the running question when the join ack lacked it.
func (c *Controller) requestState(ctx context.Context) error {
	c.mu.Lock()
	room := c.state.Session.RoomCode
	c.mu.Unlock()

	ack, err := c.transport.Send(ctx, protocol.RequestState, protocol.RoomCommand{RoomCode: room})
	if err != nil {
		return err
	}
	if err := ack.Err(protocol.RequestState); err != nil {
		return err
	}
	snapshot, err := protocol.DecodeStateAck(ack)
	if err != nil {
		return err
	}
	c.record(string(protocol.RequestState), ack.Raw)
	if snapshot == nil {
		log.Warn().Str("room_code", room).Msg("state sync returned no running question")
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	next, eff := Sync(c.state, *snapshot, c.state.Session.Status == domain.StatusPaused)
	c.state = next
	c.applyLocked(eff)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.hub.Publish(snap)
	return nil
}

// restoreSubmission pulls a confirmed answer for the current question from
// the ledger, e.g. after a restart.
func (c *Controller) restoreSubmission(ctx context.Context) {
	if c.opts.Ledger == nil {
		return
	}
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if s.Role != RoleParticipant || s.Question == nil || s.Submission != nil {
		return
	}
	key := submissionKey(s)
	sub, err := c.opts.Ledger.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("submission ledger lookup failed")
		return
	}
	if sub == nil {
		return
	}

	c.mu.Lock()
	if c.state.QuestionIndex == sub.QuestionIndex && c.state.Submission == nil {
		restored := *sub
		selected := restored.SelectedIndex
		c.state.Submission = &restored
		c.state.Selected = &selected
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) record(typ string, payload json.RawMessage) {
	if c.opts.Journal == nil {
		return
	}
	entry := domain.JournalEntry{
		RoomCode:   c.roomCode(),
		Seq:        c.seq.Add(1),
		Type:       typ,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: c.clock.Now(),
	}
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.opts.Journal.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("journal append failed")
	}
}

func submissionKey(s State) domain.SubmissionKey {
	return domain.SubmissionKey{
		RoomCode:      s.Session.RoomCode,
		ParticipantID: s.Self.Key(),
		QuestionIndex: s.QuestionIndex,
	}
}

// command sends an administrative or player request that must be acknowledged.
func (c *Controller) command(ctx context.Context, typ protocol.RequestType, payload any, allowed ...Phase) error {
	c.mu.Lock()
	phase := c.state.Phase
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ErrClosed
	}
	if len(allowed) > 0 && !phaseIn(phase, allowed) {
		return domain.Rejected(string(typ), domain.ErrWrongPhase)
	}
	ack, err := c.transport.Send(ctx, typ, payload)
	if err != nil {
		return err
	}
	if err := ack.Err(typ); err != nil {
		log.Warn().Err(err).Msg("command rejected")
		return err
	}
	return nil
}

func phaseIn(p Phase, set []Phase) bool {
	for _, q := range set {
		if p == q {
			return true
		}
	}
	return false
}

func (c *Controller) roomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Session.RoomCode != "" {
		return c.state.Session.RoomCode
	}
	return c.opts.RoomCode
}
