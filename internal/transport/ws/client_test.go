package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"livequiz/internal/domain"
	"livequiz/internal/protocol"
	"livequiz/internal/roomtest"
)

func fastPolicy(attempts int) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:         attempts,
		InitialInterval:     10 * time.Millisecond,
		MaxInterval:         20 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.1,
	}
}

func newClient(t *testing.T, srv *roomtest.Server, token string) *Client {
	t.Helper()
	c := New(Config{URL: srv.URL(), Token: token, AckTimeout: 200 * time.Millisecond, Reconnect: fastPolicy(3)})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func statusRecorder(c *Client) <-chan protocol.LinkStatus {
	ch := make(chan protocol.LinkStatus, 32)
	c.OnStatus(func(s protocol.LinkStatus, _ error) { ch <- s })
	return ch
}

func waitStatus(t *testing.T, ch <-chan protocol.LinkStatus, want protocol.LinkStatus) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("status %s not reached", want)
		}
	}
}

func TestConnectAuthenticatesAndCorrelatesAcks(t *testing.T) {
	srv := roomtest.New("secret")
	defer srv.Close()
	srv.Handle(protocol.RequestJoinSession, func(req roomtest.Request) any {
		var join protocol.JoinSession
		_ = req.Decode(&join)
		return map[string]any{"success": true, "session": map[string]any{"roomCode": join.RoomCode, "status": "waiting"}}
	})

	c := newClient(t, srv, "secret")
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, protocol.LinkConnected, c.Status())
	assert.Equal(t, 1, srv.Count(protocol.RequestAuthenticate))

	ack, err := c.Send(context.Background(), protocol.RequestJoinSession, protocol.JoinSession{RoomCode: "ABC123", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	join, err := protocol.DecodeJoinAck(ack)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", join.Session.RoomCode)
	assert.Equal(t, domain.StatusLobby, join.Session.Status)
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	c := newClient(t, srv, "tok")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Connect(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, srv.Count(protocol.RequestAuthenticate))
	assert.Len(t, srv.Conns(), 1)
}

func TestAuthRejectionIsFatalAndNotRetried(t *testing.T) {
	srv := roomtest.New("right")
	defer srv.Close()
	c := newClient(t, srv, "wrong")

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.True(t, domain.IsFatal(err))
	assert.Equal(t, 1, srv.Count(protocol.RequestAuthenticate))
	assert.Equal(t, protocol.LinkDisconnected, c.Status())
}

func TestUpgradeRejectionIsFatal(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	srv.RejectUpgrades(http.StatusUnauthorized)
	c := newClient(t, srv, "tok")

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
	assert.True(t, domain.IsFatal(err))
}

func TestUnreachableExhaustsAttempts(t *testing.T) {
	srv := roomtest.New("")
	url := srv.URL()
	srv.Close()

	c := New(Config{URL: url, Reconnect: fastPolicy(2)})
	defer c.Close()
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReconnectExhausted)
	assert.False(t, domain.IsFatal(err))
}

func TestSendWithoutConnection(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws"})
	defer c.Close()
	_, err := c.Send(context.Background(), protocol.RequestStartQuiz, protocol.RoomCommand{RoomCode: "R"})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.ErrorIs(t, c.Publish(context.Background(), protocol.RequestSendReaction, nil), domain.ErrNotConnected)
}

func TestAckTimeout(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	srv.Handle(protocol.RequestSubmitAnswer, func(roomtest.Request) any { return nil })
	c := newClient(t, srv, "")
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Send(context.Background(), protocol.RequestSubmitAnswer, protocol.SubmitAnswer{RoomCode: "R"})
	assert.ErrorIs(t, err, domain.ErrAckTimeout)
}

func TestEventsDispatchInOrderAndBadFramesAreIgnored(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	c := newClient(t, srv, "")

	got := make(chan int, 8)
	c.Subscribe(protocol.EventTimerUpdate, func(ev protocol.Event) {
		got <- ev.(protocol.TimerUpdate).TimeRemaining
	})
	var tapped []string
	var tapMu sync.Mutex
	c.Tap(func(f protocol.Frame) {
		tapMu.Lock()
		tapped = append(tapped, f.Type)
		tapMu.Unlock()
	})
	require.NoError(t, c.Connect(context.Background()))

	srv.Broadcast(protocol.EventTimerUpdate, map[string]int{"timeRemaining": 5})
	srv.Broadcast("surprise", map[string]int{"x": 1})
	srv.EmitRaw(`{"type":"timer-update","payload":{"timeRemaining":"later"}}`)
	srv.EmitRaw(`not json`)
	srv.Broadcast(protocol.EventTimerUpdate, map[string]int{"timeRemaining": 4})
	srv.Broadcast(protocol.EventTimerUpdate, map[string]int{"timeRemaining": 3})

	for _, want := range []int{5, 4, 3} {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timer-update %d not delivered", want)
		}
	}
	tapMu.Lock()
	assert.Contains(t, tapped, "surprise")
	tapMu.Unlock()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	c := newClient(t, srv, "")

	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)
	cancel := c.Subscribe(protocol.EventQuizPaused, func(protocol.Event) { first <- struct{}{} })
	c.Subscribe(protocol.EventQuizPaused, func(protocol.Event) { second <- struct{}{} })
	require.NoError(t, c.Connect(context.Background()))

	cancel()
	srv.Broadcast(protocol.EventQuizPaused, map[string]any{})
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatalf("second handler not called")
	}
	assert.Len(t, first, 0)
}

func TestReconnectsAfterDrop(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	c := newClient(t, srv, "tok")
	statuses := statusRecorder(c)
	require.NoError(t, c.Connect(context.Background()))
	waitStatus(t, statuses, protocol.LinkConnected)

	srv.DropAll()
	waitStatus(t, statuses, protocol.LinkReconnecting)
	waitStatus(t, statuses, protocol.LinkConnected)

	ack, err := c.Send(context.Background(), protocol.RequestState, protocol.RoomCommand{RoomCode: "R"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, 2, srv.Count(protocol.RequestAuthenticate))
}

func TestPendingRequestFailsWhenLinkDrops(t *testing.T) {
	srv := roomtest.New("")
	defer srv.Close()
	srv.Handle(protocol.RequestSubmitAnswer, func(roomtest.Request) any { return nil })
	c := New(Config{URL: srv.URL(), AckTimeout: 5 * time.Second, Reconnect: fastPolicy(3)})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), protocol.RequestSubmitAnswer, protocol.SubmitAnswer{RoomCode: "R"})
		errs <- err
	}()
	_, ok := srv.WaitRequest(protocol.RequestSubmitAnswer, 2*time.Second)
	require.True(t, ok)
	srv.DropAll()

	select {
	case err := <-errs:
		var connErr *domain.ConnectionError
		assert.True(t, errors.As(err, &connErr), "got %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("pending request did not fail")
	}
}

func TestReconnectExhaustionReportsDisconnected(t *testing.T) {
	srv := roomtest.New("")
	c := New(Config{URL: srv.URL(), Reconnect: fastPolicy(2)})
	defer c.Close()

	var lastErr error
	var mu sync.Mutex
	statuses := make(chan protocol.LinkStatus, 16)
	c.OnStatus(func(s protocol.LinkStatus, err error) {
		mu.Lock()
		lastErr = err
		mu.Unlock()
		statuses <- s
	})
	require.NoError(t, c.Connect(context.Background()))
	waitStatus(t, statuses, protocol.LinkConnected)

	srv.RejectUpgrades(http.StatusServiceUnavailable)
	srv.DropAll()
	waitStatus(t, statuses, protocol.LinkDisconnected)
	srv.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, lastErr, domain.ErrReconnectExhausted)
}
