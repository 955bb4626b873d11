package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/classifier"
	"github.com/xaenox/omnidesk/internal/models"
)

type stubClassifier struct {
	triage *classifier.Triage
	err    error
}

func (s *stubClassifier) TriageMessage(ctx context.Context, content string) (*classifier.Triage, error) {
	return s.triage, s.err
}

func (r *rig) newInbound(clf classifier.Classifier) *Inbound {
	return NewInbound(r.store, r.status, r.handoffs, clf, 70, zap.NewNop())
}

func TestInboundCreatesConversationWithHint(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	inbound := r.newInbound(&stubClassifier{
		triage: &classifier.Triage{Intent: "billing", Urgency: "normal", Confidence: 80, SuggestedTeam: "billing"},
	})

	conv, err := inbound.HandleMessage(context.Background(), 777, "question about my invoice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, conv.Status)
	assert.EqualValues(t, 777, conv.ContactID)
	assert.Equal(t, "billing", conv.DetectedTeam)
	// The hint is advisory: no assignment happened.
	assert.Nil(t, conv.AssignedTeamID)
	assert.Nil(t, conv.AssignedUserID)
}

func TestInboundReopensLatestConversation(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	inbound := r.newInbound(&stubClassifier{})

	conv, err := inbound.HandleMessage(context.Background(), 777, "hello")
	require.NoError(t, err)
	r.setStatus(t, conv.ID, models.StatusClosed)

	reopened, err := inbound.HandleMessage(context.Background(), 777, "are you still there?")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, reopened.ID)
	assert.Equal(t, models.StatusOpen, reopened.Status)
}

func TestInboundSurvivesClassifierFailure(t *testing.T) {
	r := newRig(t)
	inbound := r.newInbound(&stubClassifier{err: errors.New("model unavailable")})

	conv, err := inbound.HandleMessage(context.Background(), 777, "hello")
	require.NoError(t, err)
	assert.Empty(t, conv.DetectedTeam)
}

func TestInboundEscalatesConfidentUrgentMessages(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	inbound := r.newInbound(&stubClassifier{
		triage: &classifier.Triage{Intent: "support", Urgency: classifier.UrgencyUrgent, Confidence: 90, SuggestedTeam: "support"},
	})

	conv, err := inbound.HandleMessage(context.Background(), 777, "everything is down, urgent")
	require.NoError(t, err)

	// First message: unowned conversation, nothing to escalate from.
	pending, err := r.handoffs.List(context.Background(), models.HandoffPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Once owned by another team, the same triage raises an escalation.
	_, err = r.assignments.AssignTeam(context.Background(), conv.ID, int64ptr(6), models.MethodManual)
	require.NoError(t, err)

	_, err = inbound.HandleMessage(context.Background(), 777, "still down!!")
	require.NoError(t, err)

	pending, err = r.handoffs.List(context.Background(), models.HandoffPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	h := pending[0]
	assert.Equal(t, models.HandoffEscalation, h.Type)
	assert.Equal(t, models.PriorityHigh, h.Priority)
	require.NotNil(t, h.ToTeamID)
	assert.EqualValues(t, 5, *h.ToTeamID)
	require.NotNil(t, h.Classification)
	assert.Equal(t, 90, h.Classification.Confidence)
}

func TestInboundDoesNotEscalateBelowConfidence(t *testing.T) {
	r := newRig(t)
	r.seedDirectory(t)
	inbound := r.newInbound(&stubClassifier{
		triage: &classifier.Triage{Intent: "support", Urgency: classifier.UrgencyUrgent, Confidence: 40, SuggestedTeam: "support"},
	})

	conv, err := inbound.HandleMessage(context.Background(), 777, "urgent-ish")
	require.NoError(t, err)
	_, err = r.assignments.AssignTeam(context.Background(), conv.ID, int64ptr(6), models.MethodManual)
	require.NoError(t, err)

	_, err = inbound.HandleMessage(context.Background(), 777, "urgent-ish again")
	require.NoError(t, err)

	pending, err := r.handoffs.List(context.Background(), models.HandoffPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
