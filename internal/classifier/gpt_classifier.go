package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type gptTriageResponse struct {
	Intent        string `json:"intent"`
	Urgency       string `json:"urgency"`
	Confidence    int    `json:"confidence"`
	SuggestedTeam string `json:"suggested_team"`
}

// GPTClassifier triages inbound messages with a chat model. Any model
// or parse failure degrades to the keyword classifier so routing never
// blocks on the model.
type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	fallback    *KeywordClassifier
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey string, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		fallback:    NewKeywordClassifier(),
		logger:      logger,
	}
}

func (c *GPTClassifier) TriageMessage(ctx context.Context, content string) (*Triage, error) {
	prompt := fmt.Sprintf(`Classify the following customer message for conversation routing.
Return a JSON object with this structure:
{
    "intent": "billing|support|sales|complaint|general",
    "urgency": "low|normal|high|urgent",
    "confidence": 0-100,
    "suggested_team": "short team slug or empty string"
}

Message: %s`, content)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Error("Failed to get triage response", zap.Error(err))
		return c.fallback.TriageMessage(ctx, content)
	}

	var parsed gptTriageResponse
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		c.logger.Error("Failed to parse triage response",
			zap.Error(err),
			zap.String("response", response))
		return c.fallback.TriageMessage(ctx, content)
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 100 {
		parsed.Confidence = 100
	}

	return &Triage{
		Intent:        strings.ToLower(parsed.Intent),
		Urgency:       strings.ToLower(parsed.Urgency),
		Confidence:    parsed.Confidence,
		SuggestedTeam: strings.ToLower(parsed.SuggestedTeam),
	}, nil
}
