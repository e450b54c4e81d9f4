package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSubmissionLedgerReservesOnce(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	ledger := NewSubmissionLedger(client, time.Hour)
	key := domain.SubmissionKey{RoomCode: "ROOM1", ParticipantID: "u1", QuestionIndex: 3}

	ok, err := ledger.Reserve(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected reserve, got %v %v", ok, err)
	}
	if !mr.Exists("livequiz:submission:ROOM1:u1:3") {
		t.Fatalf("expected redis key to be set")
	}
	if ok, _ := ledger.Reserve(ctx, key); ok {
		t.Fatalf("expected second reserve to fail")
	}
	if got, _ := ledger.Get(ctx, key); got != nil {
		t.Fatalf("pending slot must not read as a submission")
	}

	if err := ledger.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("livequiz:submission:ROOM1:u1:3") {
		t.Fatalf("expected key removed on release")
	}
}

func TestSubmissionLedgerConfirmSurvivesRelease(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	ledger := NewSubmissionLedger(client, time.Minute)
	key := domain.SubmissionKey{RoomCode: "ROOM1", ParticipantID: "u1", QuestionIndex: 0}

	_, _ = ledger.Reserve(ctx, key)
	sub := domain.AnswerSubmission{ParticipantID: "u1", QuestionIndex: 0, SelectedIndex: 1, TimeTaken: 4}
	if err := ledger.Confirm(ctx, key, sub); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := ledger.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := ledger.Get(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("expected confirmed submission, got %v %v", got, err)
	}
	if got.SelectedIndex != 1 || got.TimeTaken != 4 {
		t.Fatalf("unexpected submission %+v", got)
	}
	if ttl := mr.TTL("livequiz:submission:ROOM1:u1:0"); ttl != time.Minute {
		t.Fatalf("expected ttl to be kept, got %s", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if got, _ := ledger.Get(ctx, key); got != nil {
		t.Fatalf("expected slot to expire")
	}
}

func TestJournalRoundTrip(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	journal := NewJournal(client, time.Hour)

	for _, seq := range []int64{1, 2} {
		err := journal.Append(ctx, domain.JournalEntry{
			RoomCode: "ROOM1",
			Seq:      seq,
			Type:     "timer-update",
			Payload:  json.RawMessage(`{"timeRemaining":5}`),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if ttl := mr.TTL("livequiz:journal:ROOM1"); ttl != time.Hour {
		t.Fatalf("expected ttl on journal, got %s", ttl)
	}

	entries, err := journal.Load(ctx, "ROOM1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[1].Seq != 2 || entries[0].Type != "timer-update" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	if _, err := journal.Load(ctx, "NOPE"); !errors.Is(err, domain.ErrJournalNotFound) {
		t.Fatalf("expected ErrJournalNotFound, got %v", err)
	}
}
