// Package ws is the channel transport: one websocket per client, an
// authenticate handshake, bounded reconnection, request/ack correlation and
// ordered typed dispatch of inbound events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
)

var (
	errLinkLost = errors.New("link lost")
	errAborted  = errors.New("aborted")
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	URL   string
	Token string

	AckTimeout       time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	Reconnect        ReconnectPolicy

	Clock  clockwork.Clock
	Dialer *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			HandshakeTimeout: c.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}
	}
	c.Reconnect = c.Reconnect.withDefaults()
	return c
}

type handlerEntry[F any] struct {
	id uint64
	fn F
}

type statusChange struct {
	status protocol.LinkStatus
	err    error
}

// item is one unit of ordered dispatch: an inbound frame or a link status change.
type item struct {
	frame  *protocol.Frame
	status *statusChange
}

// Client owns the connection to the quiz channel. Handlers run one at a
// time, in arrival order, on a single dispatch goroutine.
type Client struct {
	cfg   Config
	clock clockwork.Clock
	group singleflight.Group

	queue chan item
	done  chan struct{}

	mu        sync.Mutex
	link      *link
	linkSeq   uint64
	status    protocol.LinkStatus
	closed    bool
	pending   map[string]chan protocol.Frame
	handlers  map[protocol.EventType][]handlerEntry[func(protocol.Event)]
	statusFns []handlerEntry[func(protocol.LinkStatus, error)]
	taps      []handlerEntry[func(protocol.Frame)]
	nextID    uint64
}

// New creates a disconnected client and starts its dispatcher.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		clock:    cfg.Clock,
		queue:    make(chan item, 256),
		done:     make(chan struct{}),
		status:   protocol.LinkDisconnected,
		pending:  make(map[string]chan protocol.Frame),
		handlers: make(map[protocol.EventType][]handlerEntry[func(protocol.Event)]),
	}
	go c.dispatch()
	return c
}

// Connect establishes and authenticates the link. It returns immediately
// when a live link exists; concurrent callers share one attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do("connect", func() (any, error) {
		c.mu.Lock()
		live := c.link != nil
		c.mu.Unlock()
		if live {
			return nil, nil
		}
		c.setStatus(protocol.LinkConnecting, nil)
		err := c.establishWithRetry(ctx, "connect")
		if err != nil {
			c.setStatus(protocol.LinkDisconnected, err)
		}
		return nil, err
	})
	return err
}

// Status is the current link state.
func (c *Client) Status() protocol.LinkStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send issues one request and waits for exactly one ack, a timeout, the
// link dropping or ctx ending, whichever comes first.
func (c *Client) Send(ctx context.Context, typ protocol.RequestType, payload any) (protocol.Ack, error) {
	l, err := c.current()
	if err != nil {
		return protocol.Ack{}, err
	}
	return c.request(ctx, l, typ, payload)
}

// Publish writes a request that expects no ack.
func (c *Client) Publish(ctx context.Context, typ protocol.RequestType, payload any) error {
	l, err := c.current()
	if err != nil {
		return err
	}
	frame, err := protocol.NewFrame(string(typ), "", payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return writeErr(ctx, string(typ), l.write(data, ctx.Done()))
}

// Subscribe registers handler for every inbound event of type typ.
func (c *Client) Subscribe(typ protocol.EventType, handler func(protocol.Event)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[typ] = append(c.handlers[typ], handlerEntry[func(protocol.Event)]{id: id, fn: handler})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handlers[typ] = removeEntry(c.handlers[typ], id)
	}
}

// OnStatus registers a link status observer. It runs on the dispatch
// goroutine, ordered with events.
func (c *Client) OnStatus(fn func(protocol.LinkStatus, error)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.statusFns = append(c.statusFns, handlerEntry[func(protocol.LinkStatus, error)]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.statusFns = removeEntry(c.statusFns, id)
	}
}

// Tap sees every inbound non-ack frame before it is decoded.
func (c *Client) Tap(fn func(protocol.Frame)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.taps = append(c.taps, handlerEntry[func(protocol.Frame)]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.taps = removeEntry(c.taps, id)
	}
}

// Close drops the link and stops dispatch. Pending requests fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.link
	c.link = nil
	c.status = protocol.LinkDisconnected
	close(c.done)
	c.mu.Unlock()

	if l != nil {
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		l.close(domain.ErrClosed)
	}
	return nil
}

func (c *Client) current() (*link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrClosed
	}
	if c.link == nil {
		return nil, domain.ErrNotConnected
	}
	return c.link, nil
}

func (c *Client) request(ctx context.Context, l *link, typ protocol.RequestType, payload any) (protocol.Ack, error) {
	id := uuid.NewString()
	frame, err := protocol.NewFrame(string(typ), id, payload)
	if err != nil {
		return protocol.Ack{}, err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return protocol.Ack{}, err
	}

	reply := make(chan protocol.Frame, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	timeout := c.clock.NewTimer(c.cfg.AckTimeout)
	defer timeout.Stop()

	if err := l.write(data, ctx.Done()); err != nil {
		return protocol.Ack{}, writeErr(ctx, string(typ), err)
	}

	select {
	case f := <-reply:
		ack, err := protocol.ParseAck(f.Payload)
		if err != nil {
			return protocol.Ack{}, &domain.ProtocolError{Type: string(typ), Err: err}
		}
		return ack, nil
	case <-timeout.Chan():
		log.Warn().Str("request", string(typ)).Str("id", id).Msg("ack timed out")
		return protocol.Ack{}, fmt.Errorf("%s: %w", typ, domain.ErrAckTimeout)
	case <-l.done:
		return protocol.Ack{}, &domain.ConnectionError{Op: string(typ), Err: fmt.Errorf("%w: %v", errLinkLost, l.err)}
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	case <-c.done:
		return protocol.Ack{}, domain.ErrClosed
	}
}

func writeErr(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errAborted):
		return ctx.Err()
	default:
		return &domain.ConnectionError{Op: op, Err: err}
	}
}

func (c *Client) resolve(f protocol.Frame) {
	c.mu.Lock()
	reply, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("id", f.ID).Msg("ack for unknown or expired request")
		return
	}
	select {
	case reply <- f:
	default:
	}
}

// establishWithRetry dials and authenticates under the reconnect policy.
// Auth rejection is permanent; everything else is retried.
func (c *Client) establishWithRetry(ctx context.Context, op string) error {
	policy := c.cfg.Reconnect
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	operation := func() error {
		attempt++
		err := c.establish(ctx)
		if err == nil {
			return nil
		}
		if domain.IsFatal(err) || errors.Is(err, domain.ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("op", op).Msg("channel unreachable, retrying")
	}
	bo := backoff.WithContext(policy.backOff(c.clock), ctx)
	err := backoff.RetryNotifyWithTimer(operation, bo, notify, &clockTimer{clock: c.clock})
	if err == nil {
		return nil
	}
	if domain.IsFatal(err) || errors.Is(err, domain.ErrClosed) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && attempt < policy.MaxAttempts {
		return &domain.ConnectionError{Op: op, Err: ctxErr}
	}
	return &domain.ConnectionError{Op: op, Err: fmt.Errorf("%w after %d attempts: %w", domain.ErrReconnectExhausted, attempt, err)}
}

// establish performs one dial + authenticate and installs the link.
func (c *Client) establish(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &domain.ConnectionError{Op: "dial", Err: domain.ErrAuthRejected, Fatal: true}
		}
		return &domain.ConnectionError{Op: "dial", Err: err}
	}

	c.mu.Lock()
	c.linkSeq++
	l := newLink(c.linkSeq, conn)
	c.mu.Unlock()
	go c.writePump(l)
	go c.readPump(l)

	if c.cfg.Token != "" {
		ack, err := c.request(ctx, l, protocol.RequestAuthenticate, protocol.Authenticate{Token: c.cfg.Token})
		if err != nil {
			l.close(err)
			return &domain.ConnectionError{Op: "authenticate", Err: err}
		}
		if !ack.Success {
			l.close(domain.ErrAuthRejected)
			log.Error().Str("reason", ack.Message).Msg("authentication rejected")
			return &domain.ConnectionError{Op: "authenticate", Err: domain.ErrAuthRejected, Fatal: true}
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		l.close(domain.ErrClosed)
		return domain.ErrClosed
	}
	c.link = l
	c.mu.Unlock()

	log.Info().Str("url", c.cfg.URL).Uint64("link", l.id).Msg("channel connected")
	c.setStatus(protocol.LinkConnected, nil)
	return nil
}

// linkLost retires l and, if it was the live link, starts reconnecting.
func (c *Client) linkLost(l *link, err error) {
	l.close(err)

	c.mu.Lock()
	if c.closed || c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.mu.Unlock()

	log.Warn().Err(err).Uint64("link", l.id).Msg("channel link lost")
	c.setStatus(protocol.LinkReconnecting, err)
	go c.reconnect()
}

func (c *Client) reconnect() {
	_, err, _ := c.group.Do("connect", func() (any, error) {
		err := c.establishWithRetry(context.Background(), "reconnect")
		if err != nil && !errors.Is(err, domain.ErrClosed) {
			log.Error().Err(err).Msg("giving up on channel")
			c.setStatus(protocol.LinkDisconnected, err)
		}
		return nil, err
	})
	_ = err
}

func (c *Client) setStatus(s protocol.LinkStatus, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	select {
	case c.queue <- item{status: &statusChange{status: s, err: err}}:
	case <-c.done:
	}
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case it := <-c.queue:
			if it.status != nil {
				c.deliverStatus(*it.status)
				continue
			}
			c.deliverFrame(*it.frame)
		}
	}
}

func (c *Client) deliverStatus(s statusChange) {
	c.mu.Lock()
	fns := append([]handlerEntry[func(protocol.LinkStatus, error)](nil), c.statusFns...)
	c.mu.Unlock()
	for _, h := range fns {
		h.fn(s.status, s.err)
	}
}

func (c *Client) deliverFrame(f protocol.Frame) {
	c.mu.Lock()
	taps := append([]handlerEntry[func(protocol.Frame)](nil), c.taps...)
	c.mu.Unlock()
	for _, h := range taps {
		h.fn(f)
	}

	ev, err := protocol.Decode(f)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			log.Debug().Str("type", f.Type).Msg("ignoring unknown event")
		} else {
			log.Warn().Err(err).Msg("ignoring malformed event")
		}
		return
	}

	c.mu.Lock()
	hs := append([]handlerEntry[func(protocol.Event)](nil), c.handlers[ev.Type()]...)
	c.mu.Unlock()
	for _, h := range hs {
		h.fn(ev)
	}
}

func removeEntry[F any](entries []handlerEntry[F], id uint64) []handlerEntry[F] {
	out := entries[:0:0]
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}
