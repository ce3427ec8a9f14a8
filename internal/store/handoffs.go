package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// HandoffStore persists the human handoff queue. A conversation has at
// most one open handoff.
type HandoffStore struct {
	db *DB
}

// NewHandoffStore creates a handoff store using the given database.
func NewHandoffStore(db *DB) *HandoffStore {
	return &HandoffStore{db: db}
}

// Enqueue opens a handoff. It reports false when the conversation already
// has one open.
func (h *HandoffStore) Enqueue(ctx context.Context, ho domain.Handoff) (bool, error) {
	res, err := h.db.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO handoffs (id, conversation_id, customer_id, channel, turn_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ho.ID, ho.ConversationID, ho.CustomerID, ho.Channel, ho.TurnID, ho.Reason, formatTime(ho.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue handoff for %s: %w", ho.ConversationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close marks the open handoff for a conversation as done. It reports
// false when there was none.
func (h *HandoffStore) Close(ctx context.Context, conversationID string) (bool, error) {
	res, err := h.db.sql.ExecContext(ctx,
		`UPDATE handoffs SET closed_at = ? WHERE conversation_id = ? AND closed_at IS NULL`,
		formatTime(h.db.now()), conversationID,
	)
	if err != nil {
		return false, fmt.Errorf("close handoff for %s: %w", conversationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOpen returns open handoffs, oldest first.
func (h *HandoffStore) ListOpen(ctx context.Context) ([]domain.Handoff, error) {
	rows, err := h.db.sql.QueryContext(ctx,
		`SELECT id, conversation_id, customer_id, channel, turn_id, reason, created_at, closed_at
		 FROM handoffs WHERE closed_at IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	out := []domain.Handoff{}
	for rows.Next() {
		var (
			ho        domain.Handoff
			createdAt string
			closedAt  sql.NullString
		)
		if err := rows.Scan(&ho.ID, &ho.ConversationID, &ho.CustomerID, &ho.Channel, &ho.TurnID,
			&ho.Reason, &createdAt, &closedAt); err != nil {
			return nil, err
		}
		ho.CreatedAt = parseTime(createdAt)
		if closedAt.Valid {
			t := parseTime(closedAt.String)
			ho.ClosedAt = &t
		}
		out = append(out, ho)
	}
	return out, rows.Err()
}
