package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultLLMModel = "gpt-4o-mini"

const llmSystemPrompt = "You are a translation engine. Translate the " +
	"user's text faithfully, preserving meaning and tone. Reply with " +
	"only the translated text, no explanations."

// LLMClient implements Client on top of an OpenAI-compatible chat
// completion API. It issues one completion per text, so the queue's
// batching amortizes nothing here beyond scheduling; it exists as a
// configurable alternative when no dedicated translation service is
// available.
type LLMClient struct {
	client openai.Client
	model  string
}

// NewLLMClient creates an LLM-backed translation client.
func NewLLMClient(apiKey, model string) *LLMClient {
	if model == "" {
		model = defaultLLMModel
	}
	return &LLMClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *LLMClient) Translate(ctx context.Context, texts []string, targetLang, sourceLang string) ([]Result, error) {
	results := make([]Result, 0, len(texts))

	for _, text := range texts {
		prompt := fmt.Sprintf("Translate the following text to %s:\n\n%s", targetLang, text)
		if sourceLang != "" {
			prompt = fmt.Sprintf("Translate the following text from %s to %s:\n\n%s",
				sourceLang, targetLang, text)
		}

		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(llmSystemPrompt),
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				return nil, &APIError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
			}
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}

		results = append(results, Result{
			Text:               strings.TrimSpace(resp.Choices[0].Message.Content),
			DetectedSourceLang: sourceLang,
		})
	}
	return results, nil
}
