package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	id "conveyance/pkg/domain"
)

// PostgresTriggerStore persists transfer triggers in PostgreSQL so booked
// completion dates survive restarts.
type PostgresTriggerStore struct {
	db *sql.DB
}

func NewPostgresTriggerStore(dsn string) (*PostgresTriggerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("trigger store: open: %w", err)
	}
	return &PostgresTriggerStore{db: db}, nil
}

const triggerSchema = `
CREATE TABLE IF NOT EXISTS transfer_triggers (
    id           uuid        PRIMARY KEY,
    title_id     uuid        NOT NULL,
    agreement_id uuid        NOT NULL,
    fire_at      timestamptz NOT NULL,
    attempts     int         NOT NULL DEFAULT 0,
    fired_at     timestamptz
);

CREATE INDEX IF NOT EXISTS transfer_triggers_due
    ON transfer_triggers (fire_at) WHERE fired_at IS NULL;
`

func (s *PostgresTriggerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, triggerSchema); err != nil {
		return fmt.Errorf("trigger store: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresTriggerStore) Add(ctx context.Context, t Trigger) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO transfer_triggers (id, title_id, agreement_id, fire_at)
        VALUES ($1, $2, $3, $4)
    `, t.ID.String(), t.TitleID.String(), t.AgreementID.String(), t.FireAt)
	if err != nil {
		return fmt.Errorf("trigger store: add: %w", err)
	}
	return nil
}

func (s *PostgresTriggerStore) Due(ctx context.Context, now time.Time) ([]Trigger, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id::text, title_id::text, agreement_id::text, fire_at, attempts
        FROM transfer_triggers
        WHERE fired_at IS NULL AND fire_at <= $1
        ORDER BY fire_at
    `, now)
	if err != nil {
		return nil, fmt.Errorf("trigger store: due: %w", err)
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var (
			t                            Trigger
			idText, titleText, agrmtText string
		)
		if err := rows.Scan(&idText, &titleText, &agrmtText, &t.FireAt, &t.Attempts); err != nil {
			return nil, fmt.Errorf("trigger store: scan: %w", err)
		}
		if t.ID, err = uuid.Parse(idText); err != nil {
			return nil, fmt.Errorf("trigger store: bad trigger id %q: %w", idText, err)
		}
		if t.TitleID, err = id.ParseLinearID(titleText); err != nil {
			return nil, fmt.Errorf("trigger store: bad title id %q: %w", titleText, err)
		}
		if t.AgreementID, err = id.ParseLinearID(agrmtText); err != nil {
			return nil, fmt.Errorf("trigger store: bad agreement id %q: %w", agrmtText, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresTriggerStore) MarkFired(ctx context.Context, triggerID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE transfer_triggers SET fired_at = now() WHERE id = $1
    `, triggerID.String())
	if err != nil {
		return fmt.Errorf("trigger store: mark fired: %w", err)
	}
	return nil
}

func (s *PostgresTriggerStore) MarkFailed(ctx context.Context, triggerID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE transfer_triggers SET attempts = attempts + 1 WHERE id = $1
    `, triggerID.String())
	if err != nil {
		return fmt.Errorf("trigger store: mark failed: %w", err)
	}
	return nil
}

func (s *PostgresTriggerStore) Close() error { return s.db.Close() }
