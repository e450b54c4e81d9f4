package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"livequiz/internal/config"
	"livequiz/internal/infra/memory"
	pgjournal "livequiz/internal/infra/postgres"
	redisstore "livequiz/internal/infra/redis"
	"livequiz/internal/session"
	"livequiz/internal/transport/ws"
)

// journalStore records frames live and serves them back for replay.
type journalStore interface {
	session.Journal
	memory.JournalLoader
}

// stores are the optional backends selected by config: redis for the
// submission ledger, postgres (or redis) for the frame journal.
type stores struct {
	ledger  session.Ledger
	journal journalStore
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{}
	ttl := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			st.Close()
			return nil, err
		}
		st.ledger = redisstore.NewSubmissionLedger(redisClient, ttl)
	} else {
		st.ledger = memory.NewSubmissionLedger()
	}

	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrations(ctx, cfg); err != nil {
			st.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.journal = pgjournal.NewJournal(pool)
	case redisClient != nil:
		st.journal = redisstore.NewJournal(redisClient, ttl)
	}

	log.Debug().
		Bool("redis", redisClient != nil).
		Bool("journal", st.journal != nil).
		Msg("stores ready")
	return st, nil
}

func newTransport(cfg config.Config) *ws.Client {
	t := cfg.Transport
	policy := ws.DefaultReconnectPolicy()
	if t.ReconnectAttempts > 0 {
		policy.MaxAttempts = t.ReconnectAttempts
	}
	policy.InitialInterval = config.Duration(t.ReconnectInitial, policy.InitialInterval)
	policy.MaxInterval = config.Duration(t.ReconnectMax, policy.MaxInterval)
	if t.ReconnectFactor > 0 {
		policy.Multiplier = t.ReconnectFactor
	}
	return ws.New(ws.Config{
		URL:              cfg.Server.URL,
		Token:            cfg.Server.Token,
		AckTimeout:       config.Duration(t.AckTimeout, 0),
		HandshakeTimeout: config.Duration(t.HandshakeTimeout, 0),
		WriteTimeout:     config.Duration(t.WriteTimeout, 0),
		PingInterval:     config.Duration(t.PingInterval, 0),
		MaxMessageSize:   t.MaxMessageSize,
		Reconnect:        policy,
	})
}

func sessionOptions(cfg config.Config, st *stores) session.Options {
	opts := session.Options{
		RoomCode:    cfg.Server.RoomCode,
		DisplayName: cfg.Server.DisplayName,
		Tick:        config.Duration(cfg.Game.TickInterval, time.Second),
		FreezeFor:   config.Duration(cfg.Game.FreezeDuration, 10*time.Second),
		AutoSubmit:  cfg.AutoSubmit(),
		TimeLimit:   config.Duration(cfg.Game.QuestionTime, 0),
		PowerUps:    cfg.Game.PowerUps,
	}
	if st != nil {
		opts.Ledger = st.ledger
		if st.journal != nil {
			opts.Journal = st.journal
		}
	}
	return opts
}
