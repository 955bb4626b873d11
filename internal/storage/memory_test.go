package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/omnidesk/internal/models"
)

func TestConditionalStatusWrite(t *testing.T) {
	s := NewMemoryStorage()
	conv, err := s.CreateConversation(context.Background(), 1, "")
	require.NoError(t, err)

	updated, err := s.UpdateConversationStatus(context.Background(), conv.ID, models.StatusOpen, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)

	// Stale precondition: the row is pending now, not open.
	_, err = s.UpdateConversationStatus(context.Background(), conv.ID, models.StatusOpen, models.StatusResolved)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.UpdateConversationStatus(context.Background(), 999, models.StatusOpen, models.StatusPending)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConditionalHandoffWrite(t *testing.T) {
	s := NewMemoryStorage()
	h := &models.Handoff{ID: "h1", ConversationID: 1, Type: models.HandoffManual, Status: models.HandoffPending, Priority: models.PriorityNormal}
	require.NoError(t, s.CreateHandoff(context.Background(), h))

	by := int64(9)
	updated, err := s.UpdateHandoffStatus(context.Background(), "h1", models.HandoffPending, models.HandoffAccepted, HandoffUpdate{AcceptedByID: &by})
	require.NoError(t, err)
	assert.Equal(t, models.HandoffAccepted, updated.Status)
	require.NotNil(t, updated.AcceptedByID)
	assert.EqualValues(t, 9, *updated.AcceptedByID)

	_, err = s.UpdateHandoffStatus(context.Background(), "h1", models.HandoffPending, models.HandoffRejected, HandoffUpdate{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLatestConversationByContact(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.LatestConversationByContact(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.CreateConversation(context.Background(), 7, "")
	require.NoError(t, err)
	second, err := s.CreateConversation(context.Background(), 7, "")
	require.NoError(t, err)
	_, err = s.CreateConversation(context.Background(), 8, "")
	require.NoError(t, err)

	latest, err := s.LatestConversationByContact(context.Background(), 7)
	require.NoError(t, err)
	// Creation timestamps can collide at this resolution; either of the
	// contact's conversations is acceptable, the other contact's is not.
	assert.Contains(t, []int64{first.ID, second.ID}, latest.ID)
	assert.EqualValues(t, 7, latest.ContactID)
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	s := NewMemoryStorage()
	conv, err := s.CreateConversation(context.Background(), 1, "")
	require.NoError(t, err)

	conv.Status = models.StatusClosed

	stored, err := s.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status, "mutating a returned entity must not touch the store")
}

func TestHandoffStats(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.CreateHandoff(context.Background(), &models.Handoff{ID: "a", Status: models.HandoffPending, Type: models.HandoffManual, Priority: models.PriorityNormal}))
	require.NoError(t, s.CreateHandoff(context.Background(), &models.Handoff{ID: "b", Status: models.HandoffPending, Type: models.HandoffEscalation, Priority: models.PriorityHigh}))
	require.NoError(t, s.CreateHandoff(context.Background(), &models.Handoff{ID: "c", Status: models.HandoffRejected, Type: models.HandoffManual, Priority: models.PriorityNormal}))

	stats, err := s.HandoffStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus["pending"])
	assert.Equal(t, 2, stats.ByType["manual"])
	assert.Equal(t, 1, stats.ByPriority["high"])
}
