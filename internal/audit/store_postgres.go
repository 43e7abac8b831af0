package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends events to the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, action, credential_id, outcome, reason, method, anchor_status,
			client_ip, browser, os, is_bot, request_id, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.Action), e.CredentialID, e.Outcome, e.Reason, e.Method, e.AnchorStatus,
		e.ClientIP, e.Browser, e.OS, e.IsBot, e.RequestID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCredential returns the events for one credential, oldest first.
func (s *PostgresStore) ListByCredential(ctx context.Context, credentialID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, credential_id, outcome, reason, method, anchor_status,
			client_ip, browser, os, is_bot, request_id, occurred_at
		FROM audit_events
		WHERE credential_id = $1
		ORDER BY occurred_at ASC`, credentialID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e      Event
			action string
		)
		if err := rows.Scan(&e.ID, &action, &e.CredentialID, &e.Outcome, &e.Reason, &e.Method, &e.AnchorStatus,
			&e.ClientIP, &e.Browser, &e.OS, &e.IsBot, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
