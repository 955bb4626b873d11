package classifier

import (
	"context"
	"strings"
)

// Triage is the opaque scored result attached to routing decisions.
// Confidence is 0-100. SuggestedTeam is an advisory slug matched
// against team names; it is never applied automatically.
type Triage struct {
	Intent        string `json:"intent"`
	Urgency       string `json:"urgency"`
	Confidence    int    `json:"confidence"`
	SuggestedTeam string `json:"suggested_team,omitempty"`
}

const (
	UrgencyLow    = "low"
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

type Classifier interface {
	TriageMessage(ctx context.Context, content string) (*Triage, error)
}

// KeywordClassifier is the no-model fallback: intent buckets from
// keyword hits, urgency from a small escalation vocabulary.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var intentKeywords = map[string][]string{
	"billing":   {"invoice", "charge", "payment", "refund", "billing"},
	"support":   {"error", "broken", "help", "issue", "problem", "bug"},
	"sales":     {"price", "quote", "buy", "purchase", "plan", "upgrade"},
	"complaint": {"complaint", "unacceptable", "disappointed", "cancel"},
}

var urgentKeywords = []string{"urgent", "asap", "immediately", "emergency", "right now"}

func (c *KeywordClassifier) TriageMessage(ctx context.Context, content string) (*Triage, error) {
	lowered := strings.ToLower(content)

	triage := &Triage{
		Intent:     "general",
		Urgency:    UrgencyNormal,
		Confidence: 30,
	}

	for intent, keywords := range intentKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				triage.Intent = intent
				triage.Confidence = 60
				triage.SuggestedTeam = intent
				break
			}
		}
		if triage.Intent != "general" {
			break
		}
	}

	for _, keyword := range urgentKeywords {
		if strings.Contains(lowered, keyword) {
			triage.Urgency = UrgencyUrgent
			break
		}
	}

	return triage, nil
}
