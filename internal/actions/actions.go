// Package actions holds the declarative catalogue of conversation-level
// operations. The core exposes visible/disabled/execute; the
// interaction layer renders them.
package actions

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/models"
	"github.com/xaenox/omnidesk/internal/routing"
)

type Group string

const (
	GroupStatus   Group = "status"
	GroupActions  Group = "actions"
	GroupAdvanced Group = "advanced"
	GroupDanger   Group = "danger"
)

// Context is what predicates see: the conversation, its contact, and
// the current status. ActorID identifies the operator for execution
// and takes no part in visibility or enablement.
type Context struct {
	ConversationID int64
	ContactID      int64
	Status         models.ConversationStatus
	ActorID        int64
}

// Descriptor is a static catalogue entry, defined once at process
// start and never mutated.
type Descriptor struct {
	ID                   string
	Label                string
	Group                Group
	Endpoint             string
	RequiresConfirmation bool
	// Visible defaults to always, Disabled to never.
	Visible  func(Context) bool
	Disabled func(Context) bool
	Run      func(ctx context.Context, ac Context) (any, error)
}

func (d *Descriptor) visible(ac Context) bool {
	return d.Visible == nil || d.Visible(ac)
}

func (d *Descriptor) disabled(ac Context) bool {
	return d.Disabled != nil && d.Disabled(ac)
}

// Offered is the rendering view of an action for a given conversation.
type Offered struct {
	ID                   string `json:"id"`
	Label                string `json:"label"`
	Group                Group  `json:"group"`
	Endpoint             string `json:"endpoint,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Disabled             bool   `json:"disabled"`
}

type Result struct {
	ActionID string `json:"action_id"`
	// NeedsConfirmation is set when a confirmable action was called
	// without confirmation; nothing was executed.
	NeedsConfirmation bool `json:"needs_confirmation,omitempty"`
	Entity            any  `json:"entity,omitempty"`
}

// Dispatcher executes catalogue actions with a single in-flight
// invocation per action per conversation. A repeat while one is in
// flight is rejected, not queued.
type Dispatcher struct {
	mu       sync.Mutex
	inflight map[inflightKey]struct{}

	catalogue map[string]*Descriptor
	order     []string
	logger    *zap.Logger
}

type inflightKey struct {
	actionID       string
	conversationID int64
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		inflight:  make(map[inflightKey]struct{}),
		catalogue: make(map[string]*Descriptor),
		logger:    logger,
	}
}

func (d *Dispatcher) Register(desc Descriptor) {
	if _, exists := d.catalogue[desc.ID]; exists {
		panic("duplicate action id: " + desc.ID)
	}
	copied := desc
	d.catalogue[desc.ID] = &copied
	d.order = append(d.order, desc.ID)
}

// List returns the actions offered for a conversation, in registration
// order, with their enablement state.
func (d *Dispatcher) List(ac Context) []Offered {
	result := make([]Offered, 0, len(d.order))
	for _, id := range d.order {
		desc := d.catalogue[id]
		if !desc.visible(ac) {
			continue
		}
		result = append(result, Offered{
			ID:                   desc.ID,
			Label:                desc.Label,
			Group:                desc.Group,
			Endpoint:             desc.Endpoint,
			RequiresConfirmation: desc.RequiresConfirmation,
			Disabled:             desc.disabled(ac),
		})
	}
	return result
}

func (d *Dispatcher) Execute(ctx context.Context, actionID string, ac Context, showConfirmation bool) (*Result, error) {
	desc, exists := d.catalogue[actionID]
	if !exists || !desc.visible(ac) {
		return nil, routing.NewError(routing.KindNotFound, "no action %q for conversation %d", actionID, ac.ConversationID)
	}
	if desc.disabled(ac) {
		return nil, routing.NewError(routing.KindInvalidRequest, "action %q is disabled for conversation %d", actionID, ac.ConversationID)
	}

	if desc.RequiresConfirmation && !showConfirmation {
		return &Result{ActionID: actionID, NeedsConfirmation: true}, nil
	}

	key := inflightKey{actionID: actionID, conversationID: ac.ConversationID}
	d.mu.Lock()
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return nil, routing.NewError(routing.KindActionBusy, "action %q already in flight for conversation %d", actionID, ac.ConversationID)
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
	}()

	entity, err := desc.Run(ctx, ac)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Action executed",
		zap.String("action_id", actionID),
		zap.Int64("conversation_id", ac.ConversationID))

	return &Result{ActionID: actionID, Entity: entity}, nil
}
