package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"livequiz/internal/domain"
)

// JournalLoader reads the recorded frames of a room from a backing store.
type JournalLoader interface {
	Load(ctx context.Context, roomCode string) ([]domain.JournalEntry, error)
}

// Journal keeps recorded frames in process.
type Journal struct {
	mu    sync.RWMutex
	rooms map[string][]domain.JournalEntry
}

func NewJournal() *Journal {
	return &Journal{rooms: make(map[string][]domain.JournalEntry)}
}

func (j *Journal) Append(_ context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rooms[entry.RoomCode] = append(j.rooms[entry.RoomCode], entry)
	return nil
}

// Load returns the room's entries ordered by sequence.
func (j *Journal) Load(_ context.Context, roomCode string) ([]domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	entries, ok := j.rooms[roomCode]
	if !ok {
		return nil, domain.ErrJournalNotFound
	}
	out := append([]domain.JournalEntry(nil), entries...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// JournalCache caches loaded journals with a TTL so repeated replays of the
// same room don't hit the backing store.
type JournalCache struct {
	loader JournalLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedJournal
}

type cachedJournal struct {
	entries   []domain.JournalEntry
	expiresAt time.Time
}

func NewJournalCache(loader JournalLoader, ttl time.Duration) *JournalCache {
	return &JournalCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedJournal),
	}
}

func (c *JournalCache) Load(ctx context.Context, roomCode string) ([]domain.JournalEntry, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[roomCode]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.entries, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(roomCode, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[roomCode]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.entries, nil
		}
		c.mu.RUnlock()

		entries, err := c.loader.Load(ctx, roomCode)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		c.mu.Lock()
		c.cache[roomCode] = cachedJournal{
			entries:   entries,
			expiresAt: now.Add(ttl),
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.JournalEntry), nil
}

func (c *JournalCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
