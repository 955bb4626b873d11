package models

import "time"

type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

type AssignmentMethod string

const (
	MethodManual    AssignmentMethod = "manual"
	MethodAutomatic AssignmentMethod = "automatic"
)

// Conversation is the routing view of a conversation: ownership and
// lifecycle status. Message content lives with the channel adapters,
// not here.
type Conversation struct {
	ID               int64              `json:"id"`
	ContactID        int64              `json:"contact_id"`
	Status           ConversationStatus `json:"status"`
	AssignedTeamID   *int64             `json:"assigned_team_id"`
	AssignedUserID   *int64             `json:"assigned_user_id"`
	AssignmentMethod AssignmentMethod   `json:"assignment_method"`
	// DetectedTeam is an advisory hint from the triage classifier.
	// It is surfaced to operators and never applied automatically.
	DetectedTeam string    `json:"detected_team,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Team struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Active bool   `json:"active"`
}

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
	Online   bool   `json:"online"`
	TeamID   *int64 `json:"team_id,omitempty"`
}

type HandoffType string

const (
	HandoffManual     HandoffType = "manual"
	HandoffAutomatic  HandoffType = "automatic"
	HandoffEscalation HandoffType = "escalation"
)

func (t HandoffType) Valid() bool {
	switch t {
	case HandoffManual, HandoffAutomatic, HandoffEscalation:
		return true
	}
	return false
}

type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffAccepted  HandoffStatus = "accepted"
	HandoffRejected  HandoffStatus = "rejected"
	HandoffCompleted HandoffStatus = "completed"
)

type HandoffPriority string

const (
	PriorityLow    HandoffPriority = "low"
	PriorityNormal HandoffPriority = "normal"
	PriorityHigh   HandoffPriority = "high"
	PriorityUrgent HandoffPriority = "urgent"
)

func (p HandoffPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Classification is the opaque scored result attached to a handoff by
// the triage classifier. Confidence is 0-100.
type Classification struct {
	Intent     string `json:"intent"`
	Urgency    string `json:"urgency"`
	Confidence int    `json:"confidence"`
}

// Handoff is a proposed transfer of conversation ownership. Rows are
// retained indefinitely for audit and reporting.
type Handoff struct {
	ID             string          `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Type           HandoffType     `json:"type"`
	Status         HandoffStatus   `json:"status"`
	Priority       HandoffPriority `json:"priority"`
	FromTeamID     *int64          `json:"from_team_id"`
	FromUserID     *int64          `json:"from_user_id"`
	ToTeamID       *int64          `json:"to_team_id"`
	ToUserID       *int64          `json:"to_user_id"`
	Reason         string          `json:"reason,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	AcceptedByID   *int64          `json:"accepted_by_id,omitempty"`
	Classification *Classification `json:"ai_classification,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HandoffStats are the aggregate counts backing the reporting endpoint.
type HandoffStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByType     map[string]int `json:"by_type"`
	ByPriority map[string]int `json:"by_priority"`
}
