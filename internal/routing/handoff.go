package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

// Handoffs is the transfer workflow engine:
//
//	pending --accept--> accepted --(assignment applied)--> completed
//	pending --reject--> rejected
//
// rejected and completed are terminal. The pending->accepted
// conditional write arbitrates races: a losing accept or reject fails
// with AlreadyResolved before it can touch the conversation.
type Handoffs struct {
	storage     storage.Storage
	assignments *Assignments
	events      events.Invalidator
	logger      *zap.Logger
}

func NewHandoffs(storage storage.Storage, assignments *Assignments, events events.Invalidator, logger *zap.Logger) *Handoffs {
	return &Handoffs{
		storage:     storage,
		assignments: assignments,
		events:      events,
		logger:      logger,
	}
}

type CreateHandoffParams struct {
	ConversationID int64                  `json:"conversation_id"`
	Type           models.HandoffType     `json:"type"`
	ToTeamID       *int64                 `json:"to_team_id"`
	ToUserID       *int64                 `json:"to_user_id"`
	FromTeamID     *int64                 `json:"from_team_id"`
	FromUserID     *int64                 `json:"from_user_id"`
	Reason         string                 `json:"reason"`
	Priority       models.HandoffPriority `json:"priority"`
	Classification *models.Classification `json:"ai_classification,omitempty"`
}

func (p CreateHandoffParams) validate() error {
	if !p.Type.Valid() {
		return newError(KindInvalidRequest, "unknown handoff type %q", p.Type)
	}
	if p.ToTeamID == nil && p.ToUserID == nil {
		return newError(KindInvalidRequest, "handoff needs a target team or user")
	}
	if p.Type == models.HandoffAutomatic && p.FromTeamID == nil && p.FromUserID == nil {
		// Automatic handoffs must be replayable without operator input.
		return newError(KindInvalidRequest, "automatic handoff needs from-team or from-user context")
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return newError(KindInvalidRequest, "unknown priority %q", p.Priority)
	}
	if c := p.Classification; c != nil && (c.Confidence < 0 || c.Confidence > 100) {
		return newError(KindInvalidRequest, "classification confidence %d outside 0-100", c.Confidence)
	}
	return nil
}

func (p CreateHandoffParams) effectivePriority() models.HandoffPriority {
	if p.Priority != "" {
		return p.Priority
	}
	if p.Type == models.HandoffEscalation {
		return models.PriorityHigh
	}
	return models.PriorityNormal
}

func (h *Handoffs) Create(ctx context.Context, p CreateHandoffParams) (*models.Handoff, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if _, err := h.storage.GetConversation(ctx, p.ConversationID); err != nil {
		return nil, storeError(err, KindHandoffApplyFailed, "loading conversation %d", p.ConversationID)
	}

	now := time.Now()
	handoff := &models.Handoff{
		ID:             uuid.New().String(),
		ConversationID: p.ConversationID,
		Type:           p.Type,
		Status:         models.HandoffPending,
		Priority:       p.effectivePriority(),
		FromTeamID:     p.FromTeamID,
		FromUserID:     p.FromUserID,
		ToTeamID:       p.ToTeamID,
		ToUserID:       p.ToUserID,
		Reason:         p.Reason,
		Classification: p.Classification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.storage.CreateHandoff(ctx, handoff); err != nil {
		return nil, storeError(err, KindHandoffApplyFailed, "creating handoff for conversation %d", p.ConversationID)
	}

	h.logger.Info("Handoff created",
		zap.String("handoff_id", handoff.ID),
		zap.Int64("conversation_id", handoff.ConversationID),
		zap.String("type", string(handoff.Type)),
		zap.String("priority", string(handoff.Priority)))

	h.invalidate(ctx, handoff)
	return handoff, nil
}

// Accept resolves a pending handoff and applies its target assignment.
// The caller either gets back a completed handoff with the assignment
// already committed, or an error with the handoff still pending. A
// second accept, or an accept racing a reject, fails AlreadyResolved.
func (h *Handoffs) Accept(ctx context.Context, handoffID string, acceptingUserID int64) (*models.Handoff, error) {
	handoff, err := h.storage.GetHandoff(ctx, handoffID)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "loading handoff %s", handoffID)
	}
	if handoff.Status != models.HandoffPending {
		return nil, newError(KindAlreadyResolved, "handoff %s is already %s", handoffID, handoff.Status)
	}

	// Win the race first. Whoever lands this conditional write owns the
	// handoff; everyone else fails before touching the conversation.
	accepted, err := h.storage.UpdateHandoffStatus(ctx, handoffID, models.HandoffPending, models.HandoffAccepted, storage.HandoffUpdate{
		AcceptedByID: &acceptingUserID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, newError(KindAlreadyResolved, "handoff %s was resolved concurrently", handoffID)
		}
		return nil, storeError(err, KindHandoffApplyFailed, "accepting handoff %s", handoffID)
	}

	if err := h.applyTarget(ctx, accepted); err != nil {
		// Put the handoff back so a retry can run the same precondition
		// check; rollback failure leaves an accepted-but-unapplied row,
		// which is why it is logged loudly.
		if _, rbErr := h.storage.UpdateHandoffStatus(ctx, handoffID, models.HandoffAccepted, models.HandoffPending, storage.HandoffUpdate{}); rbErr != nil {
			h.logger.Error("Failed to roll back handoff after apply failure",
				zap.Error(rbErr),
				zap.String("handoff_id", handoffID))
		}
		return nil, wrapError(KindHandoffApplyFailed, err, "applying assignment for handoff %s", handoffID)
	}

	completed, err := h.storage.UpdateHandoffStatus(ctx, handoffID, models.HandoffAccepted, models.HandoffCompleted, storage.HandoffUpdate{})
	if err != nil {
		return nil, storeError(err, KindHandoffApplyFailed, "completing handoff %s", handoffID)
	}

	h.logger.Info("Handoff accepted",
		zap.String("handoff_id", handoffID),
		zap.Int64("accepted_by", acceptingUserID))

	h.invalidate(ctx, completed)
	return completed, nil
}

// applyTarget delegates to the assignment store with the method
// matching the handoff's origin.
func (h *Handoffs) applyTarget(ctx context.Context, handoff *models.Handoff) error {
	method := models.MethodAutomatic
	if handoff.Type == models.HandoffManual {
		method = models.MethodManual
	}

	if handoff.ToUserID != nil {
		_, err := h.assignments.AssignUser(ctx, handoff.ConversationID, handoff.ToUserID, method)
		return err
	}
	_, err := h.assignments.AssignTeam(ctx, handoff.ConversationID, handoff.ToTeamID, method)
	return err
}

// Reject resolves a pending handoff without touching the conversation
// assignment.
func (h *Handoffs) Reject(ctx context.Context, handoffID string, reason string) (*models.Handoff, error) {
	rejected, err := h.storage.UpdateHandoffStatus(ctx, handoffID, models.HandoffPending, models.HandoffRejected, storage.HandoffUpdate{
		RejectReason: &reason,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, newError(KindAlreadyResolved, "handoff %s is no longer pending", handoffID)
		}
		return nil, storeError(err, KindHandoffApplyFailed, "rejecting handoff %s", handoffID)
	}

	h.logger.Info("Handoff rejected",
		zap.String("handoff_id", handoffID),
		zap.String("reason", reason))

	h.invalidate(ctx, rejected)
	return rejected, nil
}

func (h *Handoffs) List(ctx context.Context, status models.HandoffStatus) ([]*models.Handoff, error) {
	handoffs, err := h.storage.ListHandoffs(ctx, status)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "listing handoffs")
	}
	return handoffs, nil
}

func (h *Handoffs) Stats(ctx context.Context) (*models.HandoffStats, error) {
	stats, err := h.storage.HandoffStats(ctx)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "aggregating handoff stats")
	}
	return stats, nil
}

func (h *Handoffs) invalidate(ctx context.Context, handoff *models.Handoff) {
	h.events.Invalidate(ctx, events.Signal{
		Scopes:         []events.Scope{events.ScopeHandoff, events.ScopeConversation, events.ScopeHandoffCounters},
		ConversationID: handoff.ConversationID,
		HandoffID:      handoff.ID,
	})
}
