package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// ContextStore is durable keyed storage for conversation contexts. Every
// mutation is conditional on the version the caller last read; a mismatch
// returns domain.ErrVersionConflict and changes nothing.
type ContextStore interface {
	// GetOrCreate returns the conversation, creating it in NORMAL state with
	// version 0 when it does not exist yet.
	GetOrCreate(ctx context.Context, key domain.ConversationKey) (*domain.Conversation, error)
	// Get returns domain.ErrConversationNotFound for unknown ids.
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)
	// AppendTurn appends turn and applies upd in one step, bumping the version.
	// The returned conversation is the state written by that step.
	AppendTurn(ctx context.Context, conversationID string, turn domain.Turn, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error)
	// UpdateContext applies upd without a turn, bumping the version.
	UpdateContext(ctx context.Context, conversationID string, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error)
	// Turn looks a turn up by id; domain.ErrTurnNotFound when unknown.
	Turn(ctx context.Context, turnID string) (domain.Turn, error)
}

// MemoryContextStore is an in-process ContextStore. Records are deep-copied
// on the way in and out so callers never share state with the store.
type MemoryContextStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	turnIndex     map[string]string // turn id -> conversation id
	now           func() time.Time
}

// NewMemoryContextStore creates an empty store.
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{
		conversations: make(map[string]*domain.Conversation),
		turnIndex:     make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryContextStore) GetOrCreate(ctx context.Context, key domain.ConversationKey) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[key.ConversationID]; ok {
		return conv.Clone(), nil
	}
	now := s.now()
	conv := &domain.Conversation{
		ID:               key.ConversationID,
		CustomerID:       key.CustomerID,
		AccountID:        key.AccountID,
		Channel:          key.Channel,
		EscalationState:  domain.StateNormal,
		EscalationReason: domain.ReasonNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.conversations[conv.ID] = conv
	return conv.Clone(), nil
}

func (s *MemoryContextStore) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryContextStore) AppendTurn(ctx context.Context, conversationID string, turn domain.Turn, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.checkLocked(conversationID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !domain.CanAdvance(conv.EscalationState, upd.EscalationState) {
		return nil, domain.ErrInvalidTransition
	}

	turn = turn.Clone()
	turn.ConversationID = conv.ID
	turn.Seq = len(conv.Turns) + 1
	conv.Turns = append(conv.Turns, turn)
	s.turnIndex[turn.ID] = conv.ID
	s.applyLocked(conv, upd)
	return conv.Clone(), nil
}

func (s *MemoryContextStore) UpdateContext(ctx context.Context, conversationID string, upd domain.ContextUpdate, expectedVersion int64) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.checkLocked(conversationID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if upd.EscalationState != "" && !domain.CanTransition(conv.EscalationState, upd.EscalationState) {
		return nil, domain.ErrInvalidTransition
	}
	s.applyLocked(conv, upd)
	return conv.Clone(), nil
}

func (s *MemoryContextStore) Turn(ctx context.Context, turnID string) (domain.Turn, error) {
	if err := ctx.Err(); err != nil {
		return domain.Turn{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	convID, ok := s.turnIndex[turnID]
	if !ok {
		return domain.Turn{}, domain.ErrTurnNotFound
	}
	for _, t := range s.conversations[convID].Turns {
		if t.ID == turnID {
			return t.Clone(), nil
		}
	}
	return domain.Turn{}, domain.ErrTurnNotFound
}

func (s *MemoryContextStore) checkLocked(id string, expectedVersion int64) (*domain.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if conv.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	return conv, nil
}

func (s *MemoryContextStore) applyLocked(conv *domain.Conversation, upd domain.ContextUpdate) {
	conv.ConsecutiveNegativeEmotion = upd.ConsecutiveNegativeEmotion
	conv.UnresolvedTurns = upd.UnresolvedTurns
	if upd.EscalationState != "" {
		conv.EscalationState = upd.EscalationState
	}
	conv.EscalationReason = upd.EscalationReason
	if upd.Language != "" {
		conv.Language = upd.Language
	}
	conv.Version++
	conv.UpdatedAt = s.now()
}
