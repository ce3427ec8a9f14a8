package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// ContextStore keeps conversation contexts in SQLite. Each mutation is a
// single transaction whose UPDATE is conditional on the expected version.
type ContextStore struct {
	db *DB
}

// NewContextStore creates a context store using the given database.
func NewContextStore(db *DB) *ContextStore {
	return &ContextStore{db: db}
}

const conversationColumns = `id, customer_id, account_id, channel, language, negative_streak,
	unresolved_turns, escalation_state, escalation_reason, version, created_at, updated_at`

var turnFields = []string{
	"id", "conversation_id", "seq", "timestamp", "customer_message", "language", "intent",
	"intent_confidence", "draft_response", "response_text", "sentiment_score", "dominant_emotion", "tone",
	"resolution_signal", "escalation_flag", "escalation_reason", "faq_articles", "alerts", "agent_logs",
}

var turnColumns = strings.Join(turnFields, ", ")

// qualified prefixes each turn column with a table alias for joins.
func qualified(alias string) string {
	cols := make([]string, len(turnFields))
	for i, f := range turnFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

// GetOrCreate finds a conversation by id or creates it in NORMAL state.
func (s *ContextStore) GetOrCreate(ctx context.Context, key domain.ConversationKey) (*domain.Conversation, error) {
	now := formatTime(s.db.now())
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, customer_id, account_id, channel, escalation_state, escalation_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		key.ConversationID, key.CustomerID, key.AccountID, key.Channel,
		domain.StateNormal, domain.ReasonNone, now, now,
	)
	if err != nil {
		return nil, unavailable("create conversation", err)
	}
	return s.Get(ctx, key.ConversationID)
}

// Get returns the conversation with its turns in order.
func (s *ContextStore) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return load(ctx, s.db.sql, conversationID)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func load(ctx context.Context, q querier, conversationID string) (*domain.Conversation, error) {
	conv, err := scanConversation(q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, unavailable("load conversation", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? ORDER BY seq`, conversationID,
	)
	if err != nil {
		return nil, unavailable("load turns", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, unavailable("scan turn", err)
		}
		conv.Turns = append(conv.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load turns", err)
	}
	return conv, nil
}

// AppendTurn inserts the turn and applies upd in one transaction. The
// returned conversation is the state that transaction committed.
func (s *ContextStore) AppendTurn(ctx context.Context, conversationID string, turn domain.Turn, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error) {
	return s.withVersion(ctx, conversationID, expectedVersion, func(tx *sql.Tx, state domain.EscalationState) error {
		if !domain.CanAdvance(state, upd.EscalationState) {
			return domain.ErrInvalidTransition
		}

		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = ?`, conversationID,
		).Scan(&seq); err != nil {
			return unavailable("next turn seq", err)
		}

		turn.ConversationID = conversationID
		turn.Seq = seq
		if err := insertTurn(ctx, tx, turn); err != nil {
			return unavailable("insert turn", err)
		}
		return s.apply(ctx, tx, conversationID, upd, expectedVersion)
	})
}

// UpdateContext applies upd without appending a turn.
func (s *ContextStore) UpdateContext(ctx context.Context, conversationID string, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error) {
	return s.withVersion(ctx, conversationID, expectedVersion, func(tx *sql.Tx, state domain.EscalationState) error {
		if upd.EscalationState != "" && !domain.CanTransition(state, upd.EscalationState) {
			return domain.ErrInvalidTransition
		}
		return s.apply(ctx, tx, conversationID, upd, expectedVersion)
	})
}

// Turn looks a single turn up by id.
func (s *ContextStore) Turn(ctx context.Context, turnID string) (domain.Turn, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, turnID)
	if err != nil {
		return domain.Turn{}, unavailable("load turn", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Turn{}, unavailable("load turn", err)
		}
		return domain.Turn{}, domain.ErrTurnNotFound
	}
	t, err := scanTurn(rows)
	if err != nil {
		return domain.Turn{}, unavailable("scan turn", err)
	}
	return t, nil
}

// ListByState returns conversation ids in the given escalation state, most
// recently updated first.
func (s *ContextStore) ListByState(ctx context.Context, state domain.EscalationState, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id FROM conversations WHERE escalation_state = ? ORDER BY updated_at DESC LIMIT ?`,
		state, limit,
	)
	if err != nil {
		return nil, unavailable("list conversations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan conversation id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// withVersion runs fn in a transaction after checking the stored version
// and returns the conversation as read back before the commit.
func (s *ContextStore) withVersion(ctx context.Context, id string, expected int64, fn func(*sql.Tx, domain.EscalationState) error) (*domain.Conversation, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	var (
		version int64
		state   domain.EscalationState
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, escalation_state FROM conversations WHERE id = ?`, id,
	).Scan(&version, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, unavailable("read version", err)
	}
	if version != expected {
		return nil, domain.ErrVersionConflict
	}

	if err := fn(tx, state); err != nil {
		return nil, err
	}
	conv, err := load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return conv, nil
}

func (s *ContextStore) apply(ctx context.Context, tx *sql.Tx, id string, upd domain.ContextUpdate, expected int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET
		   negative_streak = ?,
		   unresolved_turns = ?,
		   escalation_state = CASE WHEN ? = '' THEN escalation_state ELSE ? END,
		   escalation_reason = ?,
		   language = CASE WHEN ? = '' THEN language ELSE ? END,
		   version = version + 1,
		   updated_at = ?
		 WHERE id = ? AND version = ?`,
		upd.ConsecutiveNegativeEmotion, upd.UnresolvedTurns,
		upd.EscalationState, upd.EscalationState,
		upd.EscalationReason,
		upd.Language, upd.Language,
		formatTime(s.db.now()),
		id, expected,
	)
	if err != nil {
		return unavailable("update conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update conversation", err)
	}
	if n != 1 {
		return domain.ErrVersionConflict
	}
	return nil
}

func insertTurn(ctx context.Context, tx *sql.Tx, t domain.Turn) error {
	faq, err := jsonColumn(t.FAQArticles)
	if err != nil {
		return err
	}
	alerts, err := jsonColumn(t.Alerts)
	if err != nil {
		return err
	}
	logs, err := jsonColumn(t.AgentLogs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (`+turnColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConversationID, t.Seq, formatTime(t.Timestamp), t.CustomerMessage, t.Language, t.Intent,
		t.IntentConfidence, t.DraftResponse, t.ResponseText, t.SentimentScore, t.DominantEmotion, t.ToneRecommendation,
		t.ResolutionSignal, t.Escalation.Flag, t.Escalation.Reason, faq, alerts, logs,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var (
		c                    domain.Conversation
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&c.ID, &c.CustomerID, &c.AccountID, &c.Channel, &c.Language, &c.ConsecutiveNegativeEmotion,
		&c.UnresolvedTurns, &c.EscalationState, &c.EscalationReason, &c.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// scanTurn reads the turn columns followed by any extra destinations.
func scanTurn(row scanner, extra ...any) (domain.Turn, error) {
	var (
		t                 domain.Turn
		ts                string
		faq, alerts, logs sql.NullString
	)
	dest := []any{
		&t.ID, &t.ConversationID, &t.Seq, &ts, &t.CustomerMessage, &t.Language, &t.Intent,
		&t.IntentConfidence, &t.DraftResponse, &t.ResponseText, &t.SentimentScore, &t.DominantEmotion, &t.ToneRecommendation,
		&t.ResolutionSignal, &t.Escalation.Flag, &t.Escalation.Reason, &faq, &alerts, &logs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return t, err
	}
	t.Timestamp = parseTime(ts)
	if err := fromJSONColumn(faq, &t.FAQArticles); err != nil {
		return t, err
	}
	if err := fromJSONColumn(alerts, &t.Alerts); err != nil {
		return t, err
	}
	if err := fromJSONColumn(logs, &t.AgentLogs); err != nil {
		return t, err
	}
	return t, nil
}

func jsonColumn(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromJSONColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}

// unavailable tags driver failures so callers can tell them apart from
// conflicts and missing records. Context errors stay matchable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
