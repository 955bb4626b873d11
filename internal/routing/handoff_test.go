package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
)

func TestCreateHandoffDefaults(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToTeamID:       int64ptr(5),
		Reason:         "better fit",
	})
	require.NoError(t, err)
	assert.Equal(t, models.HandoffPending, h.Status)
	assert.Equal(t, models.PriorityNormal, h.Priority)
	assert.NotEmpty(t, h.ID)
}

func TestCreateEscalationDefaultsToHighPriority(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffEscalation,
		ToUserID:       int64ptr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, h.Priority)

	// An explicit priority is kept as given.
	h, err = r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffEscalation,
		ToUserID:       int64ptr(9),
		Priority:       models.PriorityUrgent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, h.Priority)
}

func TestCreateHandoffValidation(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	cases := []struct {
		name   string
		params CreateHandoffParams
	}{
		{"unknown_type", CreateHandoffParams{ConversationID: conv.ID, Type: "urgent", ToTeamID: int64ptr(5)}},
		{"no_target", CreateHandoffParams{ConversationID: conv.ID, Type: models.HandoffManual}},
		{"automatic_without_origin", CreateHandoffParams{ConversationID: conv.ID, Type: models.HandoffAutomatic, ToTeamID: int64ptr(5)}},
		{"bad_priority", CreateHandoffParams{ConversationID: conv.ID, Type: models.HandoffManual, ToTeamID: int64ptr(5), Priority: "critical"}},
		{"confidence_out_of_range", CreateHandoffParams{
			ConversationID: conv.ID, Type: models.HandoffManual, ToTeamID: int64ptr(5),
			Classification: &models.Classification{Intent: "billing", Urgency: "high", Confidence: 140},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.handoffs.Create(context.Background(), tc.params)
			assert.Equal(t, KindInvalidRequest, KindOf(err))
		})
	}
}

func TestCreateHandoffKeepsClassification(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffAutomatic,
		FromTeamID:     int64ptr(6),
		ToTeamID:       int64ptr(5),
		Classification: &models.Classification{Intent: "support", Urgency: "high", Confidence: 87},
	})
	require.NoError(t, err)

	stored, err := r.store.GetHandoff(context.Background(), h.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Classification)
	assert.Equal(t, "support", stored.Classification.Intent)
	assert.Equal(t, 87, stored.Classification.Confidence)
}

func TestAcceptAppliesAssignmentAndCompletes(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToUserID:       int64ptr(9),
	})
	require.NoError(t, err)

	accepted, err := r.handoffs.Accept(context.Background(), h.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffCompleted, accepted.Status)
	require.NotNil(t, accepted.AcceptedByID)
	assert.EqualValues(t, 10, *accepted.AcceptedByID)

	updated, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedUserID)
	assert.EqualValues(t, 9, *updated.AssignedUserID)
	require.NotNil(t, updated.AssignedTeamID)
	assert.EqualValues(t, 5, *updated.AssignedTeamID)
	assert.Equal(t, models.MethodManual, updated.AssignmentMethod)
}

func TestAcceptAutomaticUsesAutomaticMethod(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffAutomatic,
		FromTeamID:     int64ptr(6),
		ToTeamID:       int64ptr(5),
	})
	require.NoError(t, err)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 10)
	require.NoError(t, err)

	updated, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MethodAutomatic, updated.AssignmentMethod)
}

func TestAcceptTwiceFailsAlreadyResolved(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToUserID:       int64ptr(9),
	})
	require.NoError(t, err)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 10)
	require.NoError(t, err)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 10)
	assert.Equal(t, KindAlreadyResolved, KindOf(err))
}

func TestRejectKeepsAssignment(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	_, err := r.assignments.AssignTeam(context.Background(), conv.ID, int64ptr(5), models.MethodManual)
	require.NoError(t, err)
	_, err = r.assignments.AssignUser(context.Background(), conv.ID, int64ptr(9), models.MethodManual)
	require.NoError(t, err)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffEscalation,
		ToTeamID:       int64ptr(6),
	})
	require.NoError(t, err)

	rejected, err := r.handoffs.Reject(context.Background(), h.ID, "wrong queue")
	require.NoError(t, err)
	assert.Equal(t, models.HandoffRejected, rejected.Status)
	assert.Equal(t, "wrong queue", rejected.RejectReason)

	updated, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTeamID)
	require.NotNil(t, updated.AssignedUserID)
	assert.EqualValues(t, 5, *updated.AssignedTeamID)
	assert.EqualValues(t, 9, *updated.AssignedUserID)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 10)
	assert.Equal(t, KindAlreadyResolved, KindOf(err))
}

func TestRejectAfterAcceptFailsAlreadyResolved(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToTeamID:       int64ptr(5),
	})
	require.NoError(t, err)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 10)
	require.NoError(t, err)

	_, err = r.handoffs.Reject(context.Background(), h.ID, "too late")
	assert.Equal(t, KindAlreadyResolved, KindOf(err))
}

func TestConcurrentAcceptsResolveExactlyOnce(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToUserID:       int64ptr(9),
	})
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.handoffs.Accept(context.Background(), h.ID, int64(100+i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.Equal(t, KindAlreadyResolved, KindOf(err))
		}
	}
	assert.Equal(t, 1, winners, "exactly one accept must win")

	final, err := r.store.GetHandoff(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffCompleted, final.Status)

	updated, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedUserID)
	assert.EqualValues(t, 9, *updated.AssignedUserID)
}

func TestAcceptApplyFailureLeavesHandoffPending(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	// Conversation owned by support; the handoff targets a billing
	// member, so applying the assignment violates team membership.
	_, err := r.assignments.AssignTeam(context.Background(), conv.ID, int64ptr(5), models.MethodManual)
	require.NoError(t, err)

	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToUserID:       int64ptr(10),
	})
	require.NoError(t, err)

	_, err = r.handoffs.Accept(context.Background(), h.ID, 9)
	assert.Equal(t, KindHandoffApplyFailed, KindOf(err))

	stored, err := r.store.GetHandoff(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffPending, stored.Status, "failed apply must roll the handoff back to pending")

	updated, err := r.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedUserID)
}

func TestHandoffMutationsEmitInvalidation(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	r.recorder.Reset()
	h, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID,
		Type:           models.HandoffManual,
		ToTeamID:       int64ptr(5),
	})
	require.NoError(t, err)

	signals := r.recorder.Signals()
	require.Len(t, signals, 1)
	assert.ElementsMatch(t, []events.Scope{
		events.ScopeHandoff,
		events.ScopeConversation,
		events.ScopeHandoffCounters,
	}, signals[0].Scopes)
	assert.Equal(t, h.ID, signals[0].HandoffID)
}

func TestListAndStats(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	conv := r.newConversation(t)

	h1, err := r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID, Type: models.HandoffManual, ToTeamID: int64ptr(5),
	})
	require.NoError(t, err)
	_, err = r.handoffs.Create(context.Background(), CreateHandoffParams{
		ConversationID: conv.ID, Type: models.HandoffEscalation, ToTeamID: int64ptr(6),
	})
	require.NoError(t, err)

	_, err = r.handoffs.Reject(context.Background(), h1.ID, "no")
	require.NoError(t, err)

	pending, err := r.handoffs.List(context.Background(), models.HandoffPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := r.handoffs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stats, err := r.handoffs.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["pending"])
	assert.Equal(t, 1, stats.ByStatus["rejected"])
	assert.Equal(t, 1, stats.ByType["escalation"])
	assert.Equal(t, 1, stats.ByPriority["high"])
}
