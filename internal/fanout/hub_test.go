package fanout

import "testing"

func TestSubscribeReceivesInitialAndUpdates(t *testing.T) {
	h := New[int](4)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	if got := <-ch; got != 1 {
		t.Fatalf("expected initial 1, got %d", got)
	}
	h.Publish(2)
	if got := <-ch; got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	h := New[int](1)
	ch, cancel := h.Subscribe(0)
	defer cancel()

	for i := 1; i <= 5; i++ {
		h.Publish(i)
	}
	if got := <-ch; got != 5 {
		t.Fatalf("expected newest value 5, got %d", got)
	}
}

func TestCancelAndClose(t *testing.T) {
	h := New[string](2)
	ch, cancel := h.Subscribe("a")
	<-ch
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}

	other, _ := h.Subscribe("b")
	h.Close()
	<-other
	if _, ok := <-other; ok {
		t.Fatalf("expected closed channel after Close")
	}
	late, _ := h.Subscribe("c")
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel after Close")
	}
	h.Publish("ignored")
}
