// Package llm wraps the Gemini text-generation backend behind the narrow
// TextGenerator capability the pipeline consumes, so tests can substitute a
// fake and a missing API key degrades the run instead of failing it.
package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model for article synthesis.
const DefaultModel = "gemini-2.0-flash"

// Client is the Gemini-backed text generator.
type Client struct {
	modelName   string
	temperature float32
	gClient     *genai.Client
}

// NewClient creates a Gemini client. The API key is taken from the argument
// or, if empty, from the GEMINI_API_KEY environment variable.
func NewClient(apiKey, modelName string, temperature float32) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or generation.gemini_key")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:   modelName,
		temperature: temperature,
		gClient:     gClient,
	}, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.modelName
}

// Generate sends a prompt and returns the raw response text. The response
// is not guaranteed to be well-formed JSON; callers normalize it.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float64(c.temperature)),
	}

	result, err := c.gClient.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := result.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read response text: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
