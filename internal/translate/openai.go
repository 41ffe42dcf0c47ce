package translate

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAITranslator translates text using the OpenAI chat completion API
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

func NewOpenAITranslator(apiKey, model string) *OpenAITranslator {
	return NewOpenAITranslatorWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAITranslatorWithConfig allows a custom base URL or HTTP client.
func NewOpenAITranslatorWithConfig(cfg openai.ClientConfig, model string) *OpenAITranslator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAITranslator) Name() string {
	return "openai"
}

func (o *OpenAITranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(text, targetLang)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty OpenAI response")
	}
	return resp.Choices[0].Message.Content, nil
}
