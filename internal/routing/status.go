package routing

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

// StatusEngine enforces the conversation lifecycle. The store's
// conditional write on the status column is the concurrency guard: a
// transition validated against a status that changed before commit
// fails instead of applying stale state.
type StatusEngine struct {
	storage storage.Storage
	events  events.Invalidator
	logger  *zap.Logger
}

func NewStatusEngine(storage storage.Storage, events events.Invalidator, logger *zap.Logger) *StatusEngine {
	return &StatusEngine{
		storage: storage,
		events:  events,
		logger:  logger,
	}
}

// legalTransition covers operator-initiated moves only. The system
// reopen on a new inbound message goes through NoteInboundMessage.
func legalTransition(from, to models.ConversationStatus) bool {
	if to == models.StatusClosed {
		return true
	}
	if from == models.StatusClosed {
		return false
	}
	switch from {
	case models.StatusOpen:
		return to == models.StatusPending || to == models.StatusResolved
	case models.StatusPending:
		return to == models.StatusOpen || to == models.StatusResolved
	}
	return false
}

func (e *StatusEngine) RequestStatusChange(ctx context.Context, conversationID int64, newStatus models.ConversationStatus) (*models.Conversation, error) {
	if !newStatus.Valid() {
		return nil, newError(KindInvalidRequest, "unknown status %q", newStatus)
	}

	conv, err := e.storage.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "loading conversation %d", conversationID)
	}

	// Requesting the current status is an idempotent no-op: nothing
	// changed, so nothing is invalidated.
	if conv.Status == newStatus {
		return conv, nil
	}

	if !legalTransition(conv.Status, newStatus) {
		return nil, newError(KindInvalidTransition, "cannot move conversation %d from %s to %s", conversationID, conv.Status, newStatus)
	}

	updated, err := e.storage.UpdateConversationStatus(ctx, conversationID, conv.Status, newStatus)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, newError(KindInvalidTransition, "conversation %d changed status before commit", conversationID)
		}
		return nil, storeError(err, KindPersistenceTimeout, "updating status of conversation %d", conversationID)
	}

	e.logger.Info("Conversation status changed",
		zap.Int64("conversation_id", conversationID),
		zap.String("from", string(conv.Status)),
		zap.String("to", string(newStatus)))

	e.events.Invalidate(ctx, events.Signal{
		Scopes:         []events.Scope{events.ScopeConversationList, events.ScopeUnreadCount, events.ScopeConversation},
		ConversationID: conversationID,
	})
	return updated, nil
}

// NoteInboundMessage is the system-driven path for a new message from
// the contact: resolved and closed conversations reopen, open and
// pending ones only bump unread counters.
func (e *StatusEngine) NoteInboundMessage(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	conv, err := e.storage.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "loading conversation %d", conversationID)
	}

	if conv.Status == models.StatusOpen || conv.Status == models.StatusPending {
		e.events.Invalidate(ctx, events.Signal{
			Scopes:         []events.Scope{events.ScopeUnreadCount, events.ScopeConversation},
			ConversationID: conversationID,
		})
		return conv, nil
	}

	updated, err := e.storage.UpdateConversationStatus(ctx, conversationID, conv.Status, models.StatusOpen)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Someone moved it concurrently; the message still arrived,
			// re-read and report the committed state.
			return e.NoteInboundMessage(ctx, conversationID)
		}
		return nil, storeError(err, KindPersistenceTimeout, "reopening conversation %d", conversationID)
	}

	e.logger.Info("Conversation reopened by inbound message",
		zap.Int64("conversation_id", conversationID),
		zap.String("previous", string(conv.Status)))

	e.events.Invalidate(ctx, events.Signal{
		Scopes:         []events.Scope{events.ScopeConversationList, events.ScopeUnreadCount, events.ScopeConversation},
		ConversationID: conversationID,
	})
	return updated, nil
}
