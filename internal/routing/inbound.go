package routing

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/classifier"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

// Inbound consumes the new-conversation / new-message events the
// channel adapters produce. It creates or reopens the conversation,
// refreshes the advisory detected-team hint from triage, and raises an
// escalation handoff when triage is confident the message is urgent.
type Inbound struct {
	storage       storage.Storage
	status        *StatusEngine
	handoffs      *Handoffs
	classifier    classifier.Classifier
	minConfidence int
	logger        *zap.Logger
}

func NewInbound(storage storage.Storage, status *StatusEngine, handoffs *Handoffs, clf classifier.Classifier, minConfidence int, logger *zap.Logger) *Inbound {
	return &Inbound{
		storage:       storage,
		status:        status,
		handoffs:      handoffs,
		classifier:    clf,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// HandleMessage processes one inbound message from a contact and
// returns the conversation it landed in.
func (i *Inbound) HandleMessage(ctx context.Context, contactID int64, content string) (*models.Conversation, error) {
	triage := i.triage(ctx, content)

	conv, err := i.storage.LatestConversationByContact(ctx, contactID)
	if errors.Is(err, storage.ErrNotFound) {
		hint := ""
		if triage != nil {
			hint = triage.SuggestedTeam
		}
		conv, err = i.storage.CreateConversation(ctx, contactID, hint)
		if err != nil {
			return nil, storeError(err, KindPersistenceTimeout, "creating conversation for contact %d", contactID)
		}
		i.logger.Info("Conversation created",
			zap.Int64("conversation_id", conv.ID),
			zap.Int64("contact_id", contactID),
			zap.String("detected_team", hint))
	} else if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "loading conversation for contact %d", contactID)
	} else {
		conv, err = i.status.NoteInboundMessage(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		if triage != nil && triage.SuggestedTeam != "" && triage.SuggestedTeam != conv.DetectedTeam {
			if updated, err := i.storage.SetDetectedTeam(ctx, conv.ID, triage.SuggestedTeam); err == nil {
				conv = updated
			} else {
				i.logger.Warn("Failed to refresh detected team hint",
					zap.Error(err),
					zap.Int64("conversation_id", conv.ID))
			}
		}
	}

	i.maybeEscalate(ctx, conv, triage)
	return conv, nil
}

func (i *Inbound) triage(ctx context.Context, content string) *classifier.Triage {
	if i.classifier == nil || content == "" {
		return nil
	}
	triage, err := i.classifier.TriageMessage(ctx, content)
	if err != nil {
		// Triage is advisory; routing continues without it.
		i.logger.Warn("Message triage failed", zap.Error(err))
		return nil
	}
	return triage
}

// maybeEscalate raises an escalation handoff for confidently-urgent
// messages on conversations that already have an owner to escalate
// from. The target team comes from matching the suggested slug against
// active team names; no match means no escalation.
func (i *Inbound) maybeEscalate(ctx context.Context, conv *models.Conversation, triage *classifier.Triage) {
	if i.handoffs == nil || triage == nil {
		return
	}
	if triage.Urgency != classifier.UrgencyUrgent || triage.Confidence < i.minConfidence {
		return
	}
	if conv.AssignedTeamID == nil && conv.AssignedUserID == nil {
		return
	}

	target := i.matchTeam(ctx, triage.SuggestedTeam)
	if target == nil {
		return
	}
	if conv.AssignedTeamID != nil && *conv.AssignedTeamID == target.ID {
		return
	}

	_, err := i.handoffs.Create(ctx, CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffEscalation,
		ToTeamID:       &target.ID,
		FromTeamID:     conv.AssignedTeamID,
		FromUserID:     conv.AssignedUserID,
		Reason:         "urgent message detected: " + triage.Intent,
		Classification: &models.Classification{
			Intent:     triage.Intent,
			Urgency:    triage.Urgency,
			Confidence: triage.Confidence,
		},
	})
	if err != nil {
		i.logger.Warn("Failed to create escalation handoff",
			zap.Error(err),
			zap.Int64("conversation_id", conv.ID))
	}
}

func (i *Inbound) matchTeam(ctx context.Context, slug string) *models.Team {
	if slug == "" {
		return nil
	}
	teams, err := i.storage.ListTeams(ctx, true)
	if err != nil {
		i.logger.Warn("Failed to list teams for escalation", zap.Error(err))
		return nil
	}
	for _, team := range teams {
		if strings.EqualFold(team.Name, slug) {
			return team
		}
	}
	return nil
}
