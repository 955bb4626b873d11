package routing

import (
	"context"

	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

// Resolver computes candidate owners for a conversation. The team/user
// catalogue is read-mostly, so callers may cache results.
type Resolver struct {
	storage storage.Storage
}

func NewResolver(storage storage.Storage) *Resolver {
	return &Resolver{storage: storage}
}

type Candidates struct {
	Teams []*models.Team `json:"teams"`
	Users []*models.User `json:"users"`
}

// ResolveCandidates lists the teams and users a conversation could be
// assigned to. Without a team the user pool is every active agent;
// with one it is that team's active members only.
func (r *Resolver) ResolveCandidates(ctx context.Context, teamID *int64) (*Candidates, error) {
	teams, err := r.storage.ListTeams(ctx, true)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "listing teams")
	}

	var users []*models.User
	if teamID == nil {
		users, err = r.storage.ListUsers(ctx, true)
	} else {
		users, err = r.storage.TeamMembers(ctx, *teamID, true)
	}
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "listing candidate users")
	}

	return &Candidates{Teams: teams, Users: users}, nil
}

// MembersOf returns every member of a team, active and inactive, for
// directory views. Candidate computation filters to active itself.
func (r *Resolver) MembersOf(ctx context.Context, teamID int64) ([]*models.User, error) {
	members, err := r.storage.TeamMembers(ctx, teamID, false)
	if err != nil {
		return nil, storeError(err, KindPersistenceTimeout, "listing members of team %d", teamID)
	}
	return members, nil
}

// isAssignable reports whether the user is in the team's active
// candidate set.
func (r *Resolver) isAssignable(ctx context.Context, teamID, userID int64) (bool, error) {
	members, err := r.storage.TeamMembers(ctx, teamID, true)
	if err != nil {
		return false, storeError(err, KindPersistenceTimeout, "listing members of team %d", teamID)
	}
	for _, member := range members {
		if member.ID == userID {
			return true, nil
		}
	}
	return false, nil
}
