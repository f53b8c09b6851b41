package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"autotrader/internal/errors"
)

const systemPrompt = `You are a trading advisor. You receive independent strategy
signals and a combined ensemble signal for one symbol. Respond with a single JSON
object and nothing else:
{"action":"BUY|SELL|HOLD","confidence":0.0,"size":0.0,"stopLoss":0.0,"takeProfit":0.0,"riskReward":0.0,"reasoning":"..."}
Confidence and size are fractions in [0,1]. Prices are absolute. Prefer HOLD when
the strategies disagree or market quality is poor.`

// OpenAIAdvisor implements Advisor using the OpenAI chat completion API.
type OpenAIAdvisor struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdvisor creates a new OpenAI-backed advisor.
func NewOpenAIAdvisor(apiKey, model string) *OpenAIAdvisor {
	return &OpenAIAdvisor{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Advise implements Advisor. The response is schema-validated before use.
func (o *OpenAIAdvisor) Advise(ctx context.Context, req Request) (*Advice, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewOracleError("marshal request", err)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return nil, errors.NewOracleError("completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewOracleError("completion", fmt.Errorf("empty response"))
	}

	advice, err := parseAdvice(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if err := advice.Validate(); err != nil {
		return nil, errors.NewOracleError("validate", err)
	}
	return advice, nil
}

// parseAdvice extracts the JSON object from the completion text. Models
// sometimes wrap the object in a code fence.
func parseAdvice(content string) (*Advice, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var advice Advice
	if err := json.Unmarshal([]byte(content), &advice); err != nil {
		return nil, errors.NewOracleError("parse", err)
	}
	return &advice, nil
}
