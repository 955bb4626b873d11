// Package events defines the invalidation-signal contract emitted by
// every core mutation. Consumers (UI caches, unread counters) subscribe
// to refresh; delivery semantics are theirs, not ours.
package events

import (
	"context"
	"sync"
	"time"
)

type Scope string

const (
	ScopeConversationList Scope = "conversation-list"
	ScopeConversation     Scope = "conversation"
	ScopeUnreadCount      Scope = "unread-count"
	ScopeHandoff          Scope = "handoff"
	ScopeHandoffCounters  Scope = "handoff-counters"
)

// Signal tells interested consumers which cached views are stale.
type Signal struct {
	Scopes         []Scope   `json:"scopes"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	HandoffID      string    `json:"handoff_id,omitempty"`
	At             time.Time `json:"at"`
}

type Invalidator interface {
	Invalidate(ctx context.Context, sig Signal)
	Close() error
}

// Noop discards signals; used when no broker is configured.
type Noop struct{}

func (Noop) Invalidate(ctx context.Context, sig Signal) {}
func (Noop) Close() error                               { return nil }

// Recorder keeps signals in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Invalidate(ctx context.Context, sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = nil
}

func (r *Recorder) Close() error { return nil }
