package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

// PostgresLedger persists the version log in PostgreSQL. Consume-once is
// enforced with row locks on the consumed versions inside one transaction,
// so two bundles racing for the same version serialize and the loser sees
// sentinel.ErrConflict.
type PostgresLedger struct {
	pool      *pgxpool.Pool
	validator *rules.Validator
	keyring   *signing.Keyring
}

func NewPostgres(pool *pgxpool.Pool, validator *rules.Validator, keyring *signing.Keyring) *PostgresLedger {
	return &PostgresLedger{pool: pool, validator: validator, keyring: keyring}
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_versions (
    tx_id        uuid        NOT NULL,
    idx          int         NOT NULL,
    kind         text        NOT NULL,
    linear_id    uuid        NOT NULL,
    title_number text        NOT NULL DEFAULT '',
    state        jsonb       NOT NULL,
    consumed_by  uuid,
    committed_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (tx_id, idx)
);

CREATE INDEX IF NOT EXISTS ledger_versions_current
    ON ledger_versions (kind, linear_id) WHERE consumed_by IS NULL;

CREATE INDEX IF NOT EXISTS ledger_versions_title
    ON ledger_versions (kind, title_number) WHERE consumed_by IS NULL;
`

// EnsureSchema creates the ledger tables when they do not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Current(ctx context.Context, kind record.Kind, linearID id.LinearID) (record.StateAndRef, error) {
	row := l.pool.QueryRow(ctx, `
        SELECT tx_id::text, idx, state
        FROM ledger_versions
        WHERE kind=$1 AND linear_id=$2::uuid AND consumed_by IS NULL
    `, string(kind), linearID.String())

	out, err := scanVersion(kind, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.StateAndRef{}, fmt.Errorf("current %s %s: %w", kind, linearID, sentinel.ErrNotFound)
	}
	if err != nil {
		return record.StateAndRef{}, fmt.Errorf("ledger: query current: %w", err)
	}
	return out, nil
}

func (l *PostgresLedger) CurrentByTitleNumber(ctx context.Context, kind record.Kind, titleNumber id.TitleNumber) ([]record.StateAndRef, error) {
	rows, err := l.pool.Query(ctx, `
        SELECT tx_id::text, idx, state
        FROM ledger_versions
        WHERE kind=$1 AND title_number=$2 AND consumed_by IS NULL
    `, string(kind), string(titleNumber))
	if err != nil {
		return nil, fmt.Errorf("ledger: query by title number: %w", err)
	}
	defer rows.Close()

	var out []record.StateAndRef
	for rows.Next() {
		v, err := scanVersion(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) CurrentOfKind(ctx context.Context, kind record.Kind) ([]record.StateAndRef, error) {
	rows, err := l.pool.Query(ctx, `
        SELECT tx_id::text, idx, state
        FROM ledger_versions
        WHERE kind=$1 AND consumed_by IS NULL
    `, string(kind))
	if err != nil {
		return nil, fmt.Errorf("ledger: query by kind: %w", err)
	}
	defer rows.Close()

	var out []record.StateAndRef
	for rows.Next() {
		v, err := scanVersion(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Outputs(ctx context.Context, txID id.TxID) ([]record.StateAndRef, error) {
	rows, err := l.pool.Query(ctx, `
        SELECT tx_id::text, idx, kind, state
        FROM ledger_versions
        WHERE tx_id=$1::uuid
        ORDER BY idx
    `, txID.String())
	if err != nil {
		return nil, fmt.Errorf("ledger: query outputs: %w", err)
	}
	defer rows.Close()

	var out []record.StateAndRef
	for rows.Next() {
		var (
			txText string
			idx    int
			kind   string
			data   []byte
		)
		if err := rows.Scan(&txText, &idx, &kind, &data); err != nil {
			return nil, fmt.Errorf("ledger: scan output: %w", err)
		}
		v, err := versionFromRow(record.Kind(kind), txText, idx, data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", txID, sentinel.ErrNotFound)
	}
	return out, nil
}

func (l *PostgresLedger) Commit(ctx context.Context, tx ProposedTransaction) (CommittedTransaction, error) {
	if err := l.validator.Validate(rules.Proposal{
		Commands: tx.Commands,
		Consumed: tx.Consumed,
		Produced: tx.Produced,
		Signers:  tx.Signers(),
	}); err != nil {
		return CommittedTransaction{}, err
	}
	if err := VerifySignatures(l.keyring, tx); err != nil {
		return CommittedTransaction{}, err
	}

	dbtx, err := l.pool.Begin(ctx)
	if err != nil {
		return CommittedTransaction{}, fmt.Errorf("ledger: begin commit: %w", err)
	}
	defer dbtx.Rollback(ctx)

	for _, in := range tx.Consumed {
		var consumedBy *string
		err := dbtx.QueryRow(ctx, `
            SELECT consumed_by::text
            FROM ledger_versions
            WHERE tx_id=$1::uuid AND idx=$2
            FOR UPDATE
        `, in.Ref.TxID.String(), in.Ref.Index).Scan(&consumedBy)
		if errors.Is(err, pgx.ErrNoRows) {
			return CommittedTransaction{}, fmt.Errorf("version %s unknown: %w", in.Ref, sentinel.ErrConflict)
		}
		if err != nil {
			return CommittedTransaction{}, fmt.Errorf("ledger: lock consumed version: %w", err)
		}
		if consumedBy != nil {
			return CommittedTransaction{}, fmt.Errorf("version %s already superseded: %w", in.Ref, sentinel.ErrConflict)
		}
	}

	txID := id.NewTxID()
	committed := CommittedTransaction{ID: txID}

	for _, in := range tx.Consumed {
		if _, err := dbtx.Exec(ctx, `
            UPDATE ledger_versions SET consumed_by=$1::uuid
            WHERE tx_id=$2::uuid AND idx=$3
        `, txID.String(), in.Ref.TxID.String(), in.Ref.Index); err != nil {
			return CommittedTransaction{}, fmt.Errorf("ledger: supersede version: %w", err)
		}
	}

	for i, out := range tx.Produced {
		data, err := encodeState(out)
		if err != nil {
			return CommittedTransaction{}, err
		}
		if _, err := dbtx.Exec(ctx, `
            INSERT INTO ledger_versions (tx_id, idx, kind, linear_id, title_number, state)
            VALUES ($1::uuid, $2, $3, $4::uuid, $5, $6::jsonb)
        `, txID.String(), i, string(out.Kind()), out.LinearID().String(), titleNumberOf(out), data); err != nil {
			return CommittedTransaction{}, fmt.Errorf("ledger: append version: %w", err)
		}
		committed.Produced = append(committed.Produced, record.StateAndRef{
			Ref:   record.VersionRef{TxID: txID, Index: i},
			State: out,
		})
	}

	if err := dbtx.Commit(ctx); err != nil {
		return CommittedTransaction{}, fmt.Errorf("ledger: commit: %w", err)
	}
	return committed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(kind record.Kind, row rowScanner) (record.StateAndRef, error) {
	var (
		txText string
		idx    int
		data   []byte
	)
	if err := row.Scan(&txText, &idx, &data); err != nil {
		return record.StateAndRef{}, err
	}
	return versionFromRow(kind, txText, idx, data)
}

func versionFromRow(kind record.Kind, txText string, idx int, data []byte) (record.StateAndRef, error) {
	txID, err := id.ParseTxID(txText)
	if err != nil {
		return record.StateAndRef{}, fmt.Errorf("ledger: bad tx id %q: %w", txText, err)
	}
	state, err := decodeState(kind, data)
	if err != nil {
		return record.StateAndRef{}, err
	}
	return record.StateAndRef{Ref: record.VersionRef{TxID: txID, Index: idx}, State: state}, nil
}
