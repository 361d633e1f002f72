package openai

import (
	"fmt"
	"strings"

	"github.com/marketbuddy/backend/internal/domain"
)

// Sampling parameters per call kind
const (
	parseTemperature  = 0.3
	parseMaxTokens    = 800
	selectTemperature = 0.2
	selectMaxTokens   = 500
	selectTopP        = 0.95
)

// SelectionSystemPrompt frames the product selection call
const SelectionSystemPrompt = `You are a grocery shopping assistant that helps match grocery items to products in a database.
You will receive a grocery item and a list of candidate products.
Select the best matching product and explain your reasoning.`

// ChatMessage is one message of a chat completion conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat completions request body
type ChatRequest struct {
	Messages         []ChatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
}

// ChatResponse is the subset of the chat completions response we read
type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice is one completion alternative
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage reports token accounting
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewParseRequest builds the list-parsing request: instructions as the system message
func NewParseRequest(message, instructions string) ChatRequest {
	return ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: message},
		},
		Temperature: parseTemperature,
		MaxTokens:   parseMaxTokens,
	}
}

// NewSelectRequest builds the product selection request
func NewSelectRequest(prompt string) ChatRequest {
	return ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: SelectionSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: selectTemperature,
		MaxTokens:   selectMaxTokens,
		TopP:        selectTopP,
	}
}

// ExtractContent returns the first choice's message content
func ExtractContent(resp *ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrOracleResponseMalformed)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty message content", domain.ErrOracleResponseMalformed)
	}
	return content, nil
}
