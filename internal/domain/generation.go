package domain

import "context"

// Provider is an interchangeable text-generation backend.
type Provider interface {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name() string
	// Model identifies the configured model.
	Model() string
	// Generate produces an answer for the prompt.
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// GenerationResult is the uniform outcome of a generation request.
// On failure Success is false, Provider and Model are "none", and Answer
// holds a fixed user-safe message; Err never carries provider error text
// to user-facing surfaces.
type GenerationResult struct {
	Answer   string
	Provider string
	Model    string
	Success  bool
	Err      string
}
