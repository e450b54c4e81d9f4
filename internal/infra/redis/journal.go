package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

// Journal records frames as a list per room:
// RPUSH livequiz:journal:{room} {entry json}
type Journal struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJournal(client *redis.Client, ttl time.Duration) *Journal {
	return &Journal{client: client, ttl: ttl}
}

func (j *Journal) Append(ctx context.Context, entry domain.JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	key := j.key(entry.RoomCode)
	pipe := j.client.Pipeline()
	pipe.RPush(ctx, key, raw)
	if j.ttl > 0 {
		pipe.Expire(ctx, key, j.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (j *Journal) Load(ctx context.Context, roomCode string) ([]domain.JournalEntry, error) {
	items, err := j.client.LRange(ctx, j.key(roomCode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if len(items) == 0 {
		return nil, domain.ErrJournalNotFound
	}
	out := make([]domain.JournalEntry, 0, len(items))
	for _, item := range items {
		var e domain.JournalEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("unmarshal journal entry: %w", err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

func (j *Journal) key(roomCode string) string {
	return "livequiz:journal:" + roomCode
}
