package actions

import (
	"context"

	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/routing"
)

// RegisterCatalogue wires the product's conversation actions into the
// dispatcher. Status-changing actions disable themselves when the
// target equals the current status; that is a UX nicety, the status
// engine's no-op handling is the real invariant.
func RegisterCatalogue(d *Dispatcher, status *routing.StatusEngine, assignments *routing.Assignments, inv events.Invalidator) {
	statusAction := func(id, label string, target models.ConversationStatus) Descriptor {
		return Descriptor{
			ID:       id,
			Label:    label,
			Group:    GroupStatus,
			Endpoint: "/conversations/{id}/status",
			Disabled: func(ac Context) bool { return ac.Status == target },
			Run: func(ctx context.Context, ac Context) (any, error) {
				return status.RequestStatusChange(ctx, ac.ConversationID, target)
			},
		}
	}

	d.Register(statusAction("mark-pending", "Mark as pending", models.StatusPending))
	d.Register(statusAction("reopen", "Reopen", models.StatusOpen))
	d.Register(statusAction("resolve", "Resolve", models.StatusResolved))

	closeAction := statusAction("close", "Close conversation", models.StatusClosed)
	closeAction.Group = GroupDanger
	closeAction.RequiresConfirmation = true
	d.Register(closeAction)

	d.Register(Descriptor{
		ID:       "assign-to-me",
		Label:    "Assign to me",
		Group:    GroupActions,
		Endpoint: "/conversations/{id}/assign-user",
		Visible:  func(ac Context) bool { return ac.Status != models.StatusClosed },
		Run: func(ctx context.Context, ac Context) (any, error) {
			return assignments.AssignUser(ctx, ac.ConversationID, &ac.ActorID, models.MethodManual)
		},
	})

	d.Register(Descriptor{
		ID:       "release",
		Label:    "Send to queue",
		Group:    GroupActions,
		Endpoint: "/conversations/{id}/assign-team",
		Visible:  func(ac Context) bool { return ac.Status != models.StatusClosed },
		Run: func(ctx context.Context, ac Context) (any, error) {
			return assignments.AssignTeam(ctx, ac.ConversationID, nil, models.MethodManual)
		},
	})

	// Follow, history sync and contact blocking live in subsystems
	// outside the routing core; here they only refresh consumers.
	signalOnly := func(id, label string, group Group, scopes ...events.Scope) Descriptor {
		return Descriptor{
			ID:    id,
			Label: label,
			Group: group,
			Run: func(ctx context.Context, ac Context) (any, error) {
				inv.Invalidate(ctx, events.Signal{
					Scopes:         scopes,
					ConversationID: ac.ConversationID,
				})
				return nil, nil
			},
		}
	}

	d.Register(signalOnly("follow", "Follow conversation", GroupActions, events.ScopeConversation))
	d.Register(signalOnly("sync-history", "Sync message history", GroupAdvanced, events.ScopeConversation, events.ScopeConversationList))

	blockContact := signalOnly("block-contact", "Block contact", GroupDanger, events.ScopeConversation, events.ScopeConversationList)
	blockContact.RequiresConfirmation = true
	d.Register(blockContact)
}
