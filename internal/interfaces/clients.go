// Package interfaces defines service contracts for fintrack
package interfaces

import "context"

// GeminiClient provides access to Gemini API
type GeminiClient interface {
	// GenerateWithSearch generates content with Google Search grounding enabled
	GenerateWithSearch(ctx context.Context, prompt string) (string, error)
}
