package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

const pendingMarker = "pending"

// releaseScript deletes the key only while it still holds the pending marker,
// so a late Release never wipes a confirmed submission.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionLedger is a session.Ledger shared across processes. A slot is
// claimed with SET NX and expires after ttl.
// Keys: livequiz:submission:{room}:{participant}:{question}
type SubmissionLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmissionLedger(client *redis.Client, ttl time.Duration) *SubmissionLedger {
	return &SubmissionLedger{client: client, ttl: ttl}
}

func (l *SubmissionLedger) Reserve(ctx context.Context, key domain.SubmissionKey) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), pendingMarker, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
	return ok, nil
}

func (l *SubmissionLedger) Confirm(ctx context.Context, key domain.SubmissionKey, sub domain.AnswerSubmission) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := l.client.Set(ctx, l.key(key), raw, l.ttl).Err(); err != nil {
		return fmt.Errorf("confirm %s: %w", key, err)
	}
	return nil
}

func (l *SubmissionLedger) Release(ctx context.Context, key domain.SubmissionKey) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (l *SubmissionLedger) Get(ctx context.Context, key domain.SubmissionKey) (*domain.AnswerSubmission, error) {
	raw, err := l.client.Get(ctx, l.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if raw == pendingMarker {
		return nil, nil
	}
	var sub domain.AnswerSubmission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return &sub, nil
}

func (l *SubmissionLedger) key(k domain.SubmissionKey) string {
	return "livequiz:submission:" + k.String()
}
