package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/storage"
)

type rig struct {
	store       *storage.MemoryStorage
	recorder    *events.Recorder
	status      *StatusEngine
	resolver    *Resolver
	assignments *Assignments
	handoffs    *Handoffs
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := storage.NewMemoryStorage()
	recorder := events.NewRecorder()
	logger := zap.NewNop()

	resolver := NewResolver(store)
	assignments := NewAssignments(store, resolver, recorder, logger)
	return &rig{
		store:       store,
		recorder:    recorder,
		status:      NewStatusEngine(store, recorder, logger),
		resolver:    resolver,
		assignments: assignments,
		handoffs:    NewHandoffs(store, assignments, recorder, logger),
	}
}

func (r *rig) newConversation(t *testing.T) *models.Conversation {
	t.Helper()
	conv, err := r.store.CreateConversation(context.Background(), 100, "")
	require.NoError(t, err)
	return conv
}

func (r *rig) setStatus(t *testing.T, id int64, status models.ConversationStatus) {
	t.Helper()
	conv, err := r.store.GetConversation(context.Background(), id)
	require.NoError(t, err)
	_, err = r.store.UpdateConversationStatus(context.Background(), id, conv.Status, status)
	require.NoError(t, err)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from models.ConversationStatus
		to   models.ConversationStatus
		ok   bool
	}{
		{models.StatusOpen, models.StatusPending, true},
		{models.StatusPending, models.StatusOpen, true},
		{models.StatusOpen, models.StatusResolved, true},
		{models.StatusPending, models.StatusResolved, true},
		{models.StatusOpen, models.StatusClosed, true},
		{models.StatusPending, models.StatusClosed, true},
		{models.StatusResolved, models.StatusClosed, true},
		{models.StatusResolved, models.StatusOpen, false},
		{models.StatusResolved, models.StatusPending, false},
		{models.StatusClosed, models.StatusOpen, false},
		{models.StatusClosed, models.StatusPending, false},
		{models.StatusClosed, models.StatusResolved, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			r := newRig(t)
			conv := r.newConversation(t)
			r.setStatus(t, conv.ID, tc.from)

			updated, err := r.status.RequestStatusChange(context.Background(), conv.ID, tc.to)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, updated.Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, KindInvalidTransition, KindOf(err))
			}
		})
	}
}

func TestStatusChangeToSameIsNoOp(t *testing.T) {
	r := newRig(t)
	conv := r.newConversation(t)
	before, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	r.recorder.Reset()

	updated, err := r.status.RequestStatusChange(context.Background(), conv.ID, models.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, updated.Status)
	assert.Equal(t, before.UpdatedAt, updated.UpdatedAt)
	assert.Empty(t, r.recorder.Signals(), "no-op must not invalidate anything")
}

func TestStatusChangeEmitsInvalidation(t *testing.T) {
	r := newRig(t)
	conv := r.newConversation(t)
	r.recorder.Reset()

	_, err := r.status.RequestStatusChange(context.Background(), conv.ID, models.StatusPending)
	require.NoError(t, err)

	signals := r.recorder.Signals()
	require.Len(t, signals, 1)
	assert.ElementsMatch(t, []events.Scope{
		events.ScopeConversationList,
		events.ScopeUnreadCount,
		events.ScopeConversation,
	}, signals[0].Scopes)
	assert.Equal(t, conv.ID, signals[0].ConversationID)
}

func TestStatusChangeUnknownStatus(t *testing.T) {
	r := newRig(t)
	conv := r.newConversation(t)

	_, err := r.status.RequestStatusChange(context.Background(), conv.ID, "archived")
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestStatusChangeMissingConversation(t *testing.T) {
	r := newRig(t)
	_, err := r.status.RequestStatusChange(context.Background(), 12345, models.StatusPending)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInboundMessageReopensResolvedAndClosed(t *testing.T) {
	for _, from := range []models.ConversationStatus{models.StatusResolved, models.StatusClosed} {
		t.Run(string(from), func(t *testing.T) {
			r := newRig(t)
			conv := r.newConversation(t)
			r.setStatus(t, conv.ID, from)

			updated, err := r.status.NoteInboundMessage(context.Background(), conv.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusOpen, updated.Status)
		})
	}
}

func TestInboundMessageLeavesOpenAndPendingAlone(t *testing.T) {
	for _, from := range []models.ConversationStatus{models.StatusOpen, models.StatusPending} {
		t.Run(string(from), func(t *testing.T) {
			r := newRig(t)
			conv := r.newConversation(t)
			r.setStatus(t, conv.ID, from)
			r.recorder.Reset()

			updated, err := r.status.NoteInboundMessage(context.Background(), conv.ID)
			require.NoError(t, err)
			assert.Equal(t, from, updated.Status)

			signals := r.recorder.Signals()
			require.Len(t, signals, 1)
			assert.NotContains(t, signals[0].Scopes, events.ScopeConversationList)
			assert.Contains(t, signals[0].Scopes, events.ScopeUnreadCount)
		})
	}
}

func TestClosedIsTerminalForOperators(t *testing.T) {
	r := newRig(t)
	conv := r.newConversation(t)
	r.setStatus(t, conv.ID, models.StatusClosed)

	for _, to := range []models.ConversationStatus{models.StatusOpen, models.StatusPending, models.StatusResolved} {
		_, err := r.status.RequestStatusChange(context.Background(), conv.ID, to)
		assert.Equal(t, KindInvalidTransition, KindOf(err), "closed -> %s must fail", to)
	}

	// The system reopen is the only way out.
	updated, err := r.status.NoteInboundMessage(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, updated.Status)
}
