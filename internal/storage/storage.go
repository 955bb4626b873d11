package storage

import (
	"context"
	"errors"

	"github.com/xaenox/omnidesk/internal/models"
)

// Sentinel errors the routing layer maps onto its taxonomy. ErrConflict
// means a conditional write found a precondition that no longer holds;
// it is the storage-level concurrency guard.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("precondition no longer holds")
	ErrTimeout  = errors.New("storage timeout")
)

// HandoffUpdate carries the optional fields written alongside a handoff
// status transition.
type HandoffUpdate struct {
	RejectReason *string
	AcceptedByID *int64
}

type ConversationStorage interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	CreateConversation(ctx context.Context, contactID int64, detectedTeam string) (*models.Conversation, error)
	LatestConversationByContact(ctx context.Context, contactID int64) (*models.Conversation, error)

	// UpdateConversationStatus writes the new status only if the current
	// status still equals from, returning ErrConflict otherwise.
	UpdateConversationStatus(ctx context.Context, id int64, from, to models.ConversationStatus) (*models.Conversation, error)
	SetConversationAssignment(ctx context.Context, id int64, teamID, userID *int64, method models.AssignmentMethod) (*models.Conversation, error)
	SetDetectedTeam(ctx context.Context, id int64, hint string) (*models.Conversation, error)
}

type HandoffStorage interface {
	CreateHandoff(ctx context.Context, h *models.Handoff) error
	GetHandoff(ctx context.Context, id string) (*models.Handoff, error)

	// UpdateHandoffStatus writes the new status only if the current
	// status still equals from, returning ErrConflict otherwise.
	UpdateHandoffStatus(ctx context.Context, id string, from, to models.HandoffStatus, update HandoffUpdate) (*models.Handoff, error)
	ListHandoffs(ctx context.Context, status models.HandoffStatus) ([]*models.Handoff, error)
	HandoffStats(ctx context.Context) (*models.HandoffStats, error)
}

// DirectoryStorage is the read-mostly team/user catalogue.
type DirectoryStorage interface {
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	ListTeams(ctx context.Context, activeOnly bool) ([]*models.Team, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]*models.User, error)
	TeamMembers(ctx context.Context, teamID int64, activeOnly bool) ([]*models.User, error)
}

type Storage interface {
	ConversationStorage
	HandoffStorage
	DirectoryStorage
	Close() error
}
