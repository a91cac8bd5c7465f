package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"coinscout/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openaiMaxOpportunities = 10

const openaiSystemPrompt = `You are a quantitative crypto trading reviewer.
Given a ranked list of trade opportunities, reply with JSON only:
{"score": <0-100 integer overall attractiveness>, "recommendation": "<strong_buy|buy|hold|avoid>"}`

// OpenAIProvider asks a chat model for an independent opinion about the
// ranked opportunity set.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) Opine(ctx context.Context, opportunities []domain.Opportunity) (Opinion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openaiSystemPrompt),
			openai.UserMessage(formatOpportunityPrompt(opportunities)),
		},
	})
	if err != nil {
		return Opinion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Opinion{}, fmt.Errorf("chat completion returned no choices")
	}

	return parseOpinion(p.Name(), resp.Choices[0].Message.Content)
}

func formatOpportunityPrompt(opportunities []domain.Opportunity) string {
	if len(opportunities) == 0 {
		return "No opportunities were found in this scan."
	}
	if len(opportunities) > openaiMaxOpportunities {
		opportunities = opportunities[:openaiMaxOpportunities]
	}

	var sb strings.Builder
	sb.WriteString("Ranked opportunities:\n")
	for i, o := range opportunities {
		fmt.Fprintf(&sb, "%d. %s %s (%s): profit $%.0f, confidence %.0f, risk %s\n",
			i+1, o.StrategyName, o.Symbol, o.OpportunityType,
			o.ProfitPotentialUSD, o.ConfidenceScore, o.Risk)
	}
	return sb.String()
}

func parseOpinion(provider, content string) (Opinion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload struct {
		Score          float64 `json:"score"`
		Recommendation string  `json:"recommendation"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return Opinion{}, fmt.Errorf("parse opinion %q: %w", content, err)
	}
	return Opinion{
		Provider:       provider,
		Score:          clampScore(payload.Score),
		Recommendation: payload.Recommendation,
	}, nil
}
