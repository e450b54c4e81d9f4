package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"livequiz/internal/domain"
)

// Journal stores recorded frames in the frame_journal table.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

func (j *Journal) Append(ctx context.Context, e domain.JournalEntry) error {
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	_, err := j.pool.Exec(ctx,
		`INSERT INTO frame_journal (room_code, seq, type, payload, received_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (room_code, seq) DO NOTHING`,
		e.RoomCode, e.Seq, e.Type, string(payload), e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (j *Journal) Load(ctx context.Context, roomCode string) ([]domain.JournalEntry, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT seq, type, payload::text, received_at FROM frame_journal WHERE room_code=$1 ORDER BY seq`,
		roomCode)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		e := domain.JournalEntry{RoomCode: roomCode}
		var payload string
		if err := rows.Scan(&e.Seq, &e.Type, &payload, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrJournalNotFound
	}
	return out, nil
}
