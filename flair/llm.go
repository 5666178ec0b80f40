package flair

import "context"

// LLMClient is a chat model that can be swapped for a mock.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider configuration handed to an implementation.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}
