package routing

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

// Assignments owns the conversation's (team, user) ownership pair.
// Assignment and status are orthogonal: neither engine consults the
// other's axis.
type Assignments struct {
	storage  storage.Storage
	resolver *Resolver
	events   events.Invalidator
	logger   *zap.Logger
}

func NewAssignments(storage storage.Storage, resolver *Resolver, events events.Invalidator, logger *zap.Logger) *Assignments {
	return &Assignments{
		storage:  storage,
		resolver: resolver,
		events:   events,
		logger:   logger,
	}
}

// AssignTeam moves the conversation to a team, or with a nil teamID to
// the neutral queue. A team different from the current one clears the
// user assignment: a user cannot stay assigned once their team context
// changes.
func (a *Assignments) AssignTeam(ctx context.Context, conversationID int64, teamID *int64, method models.AssignmentMethod) (*models.Conversation, error) {
	conv, err := a.storage.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, KindAssignmentPersistence, "loading conversation %d", conversationID)
	}

	if teamID != nil {
		if _, err := a.storage.GetTeam(ctx, *teamID); err != nil {
			return nil, storeError(err, KindAssignmentPersistence, "loading team %d", *teamID)
		}
	}

	userID := conv.AssignedUserID
	if !sameID(teamID, conv.AssignedTeamID) {
		userID = nil
	}

	updated, err := a.storage.SetConversationAssignment(ctx, conversationID, teamID, userID, method)
	if err != nil {
		return nil, storeError(err, KindAssignmentPersistence, "assigning team on conversation %d", conversationID)
	}

	a.logger.Info("Conversation team assigned",
		zap.Int64("conversation_id", conversationID),
		zap.Any("team_id", teamID),
		zap.String("method", string(method)))

	a.invalidate(ctx, conversationID)
	return updated, nil
}

// AssignUser assigns an agent. When the conversation has a team the
// agent must be one of its active members; without a team this is a
// direct personal assignment and the agent's primary team is recorded
// alongside.
func (a *Assignments) AssignUser(ctx context.Context, conversationID int64, userID *int64, method models.AssignmentMethod) (*models.Conversation, error) {
	conv, err := a.storage.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, KindAssignmentPersistence, "loading conversation %d", conversationID)
	}

	teamID := conv.AssignedTeamID
	if userID != nil {
		user, err := a.storage.GetUser(ctx, *userID)
		if err != nil {
			return nil, storeError(err, KindAssignmentPersistence, "loading user %d", *userID)
		}

		if teamID != nil {
			ok, err := a.resolver.isAssignable(ctx, *teamID, *userID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, newError(KindUserNotInTeam, "user %d is not an active member of team %d", *userID, *teamID)
			}
		} else {
			teamID = user.TeamID
		}
	}

	updated, err := a.storage.SetConversationAssignment(ctx, conversationID, teamID, userID, method)
	if err != nil {
		return nil, storeError(err, KindAssignmentPersistence, "assigning user on conversation %d", conversationID)
	}

	a.logger.Info("Conversation user assigned",
		zap.Int64("conversation_id", conversationID),
		zap.Any("user_id", userID),
		zap.String("method", string(method)))

	a.invalidate(ctx, conversationID)
	return updated, nil
}

func (a *Assignments) invalidate(ctx context.Context, conversationID int64) {
	a.events.Invalidate(ctx, events.Signal{
		Scopes:         []events.Scope{events.ScopeConversationList, events.ScopeConversation},
		ConversationID: conversationID,
	})
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
