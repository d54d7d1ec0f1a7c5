// Package oracle asks a search-grounded language model for latest stock prices.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Service implements interfaces.PriceOracle over a GeminiClient.
type Service struct {
	client interfaces.GeminiClient
	logger *common.Logger
}

// NewService creates a new price oracle.
func NewService(client interfaces.GeminiClient, logger *common.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// BuildPrompt renders the fixed price request for symbols.
func BuildPrompt(symbols []string) string {
	return fmt.Sprintf(`I need the latest market price for the following stock symbols: %s.

Please use Google Search to find the most recent closing price or real-time price.

Return the data strictly as a JSON array inside a markdown code block (`+"```json ... ```"+`).
The JSON objects should have these properties:
- "symbol": string (the symbol requested)
- "price": number (the numeric price value only)
- "currency": string (e.g., "TWD", "USD")

Do not include any other text outside the code block.`, strings.Join(symbols, ", "))
}

// FetchQuotes makes one batched request for every symbol. Transport and
// parse failures are returned as errors; a *ParseError can be matched with
// errors.As.
func (s *Service) FetchQuotes(ctx context.Context, symbols []string) ([]models.PriceQuote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	text, err := s.client.GenerateWithSearch(ctx, BuildPrompt(symbols))
	if err != nil {
		return nil, fmt.Errorf("price oracle request failed: %w", err)
	}

	quotes, err := ParseQuotes(text)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			s.logger.Warn().Str("reason", perr.Reason).Str("snippet", perr.Snippet).Msg("Unparseable oracle response")
		}
		return nil, err
	}

	s.logger.Info().
		Int("requested", len(symbols)).
		Int("quoted", len(quotes)).
		Msg("Oracle quotes received")
	return quotes, nil
}

var _ interfaces.PriceOracle = (*Service)(nil)
