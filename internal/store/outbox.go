package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/outbox"
)

var _ outbox.Outbox = (*Store)(nil)

// Stage upserts outbox entries in one transaction.
// ON CONFLICT(kind, op, key) keeps the original id and attempt count and
// replaces payload and seq.
func (s *Store) Stage(ctx context.Context, entries []outbox.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.inTx(ctx, "stage outbox", func(tx *sql.Tx) error {
		for _, e := range entries {
			var payload any
			if e.Payload != nil {
				payload = string(e.Payload)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO outbox (id, kind, op, key, payload, attempts, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(kind, op, key) DO UPDATE SET
					payload = excluded.payload,
					seq = excluded.seq
			`, e.ID, string(e.Kind), string(e.Op), e.Key, payload, e.Attempts, e.Seq); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ack deletes outbox entries.
func (s *Store) Ack(ctx context.Context, kind model.EntityKind, op outbox.Op, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.inTx(ctx, "ack outbox", func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM outbox WHERE kind = ? AND op = ? AND key = ?`,
				string(kind), string(op), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Fail increments the attempt count of outbox entries.
func (s *Store) Fail(ctx context.Context, kind model.EntityKind, op outbox.Op, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.inTx(ctx, "fail outbox", func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outbox SET attempts = attempts + 1 WHERE kind = ? AND op = ? AND key = ?`,
				string(kind), string(op), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pending returns all staged entries.
// Ordered by seq ASC, id ASC COLLATE BINARY.
func (s *Store) Pending(ctx context.Context) ([]outbox.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, op, key, payload, attempts, seq
		FROM outbox
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	entries := []outbox.Entry{}
	for rows.Next() {
		var (
			e       outbox.Entry
			kind    string
			op      string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &op, &e.Key, &payload, &e.Attempts, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		e.Op = outbox.Op(op)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// inTx runs fn in a transaction, wrapping any error with op.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
