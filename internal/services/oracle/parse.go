package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fintrack/internal/models"
)

// ParseError reports an oracle response with no usable JSON payload.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return "oracle response: " + e.Reason
	}
	return fmt.Sprintf("oracle response: %s (%q)", e.Reason, e.Snippet)
}

var (
	jsonFence = regexp.MustCompile("(?s)```json[ \t]*\r?\n?(.*?)```")
	bareFence = regexp.MustCompile("(?s)```[ \t]*\r?\n(.*?)```")
)

// wrapperPaths are tried in order when the payload is an object wrapping the quote array.
var wrapperPaths = []string{"$.prices", "$.quotes", "$.data", "$.results", "$.stocks"}

// ParseQuotes extracts price quotes from a model response. It accepts a
// ```json fenced block, a bare fenced block, a raw JSON array, an object
// wrapping the array, or an array embedded in prose. Items without a
// symbol or a numeric price are skipped. A response with no JSON payload
// returns a *ParseError.
func ParseQuotes(text string) ([]models.PriceQuote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	for _, candidate := range candidates(text) {
		items, ok := decodeItems(candidate)
		if !ok {
			continue
		}
		quotes := make([]models.PriceQuote, 0, len(items))
		for _, item := range items {
			if q, ok := toQuote(item); ok {
				quotes = append(quotes, q)
			}
		}
		return quotes, nil
	}

	return nil, &ParseError{Reason: "no JSON quote array found", Snippet: snippet(text)}
}

// candidates lists the substrings that may hold the payload, most specific first.
func candidates(text string) []string {
	var out []string
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := bareFence.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	out = append(out, text)
	if i, j := strings.Index(text, "["), strings.LastIndex(text, "]"); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	return out
}

// decodeItems returns the quote items held by a JSON document, if any.
func decodeItems(candidate string) ([]any, bool) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}

	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, path := range wrapperPaths {
			if arr, err := jsonpath.Get(path, v); err == nil {
				if items, ok := arr.([]any); ok {
					return items, true
				}
			}
		}
		if _, ok := v["symbol"]; ok {
			return []any{v}, true
		}
		// Fall back to the first array-valued member.
		if members, err := jsonpath.Get("$.*", v); err == nil {
			if list, ok := members.([]any); ok {
				for _, m := range list {
					if items, ok := m.([]any); ok {
						return items, true
					}
				}
			}
		}
	}
	return nil, false
}

func toQuote(item any) (models.PriceQuote, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return models.PriceQuote{}, false
	}

	symbol := firstString(obj, "symbol", "ticker")
	if symbol == "" {
		return models.PriceQuote{}, false
	}

	var price decimal.Decimal
	found := false
	for _, key := range []string{"price", "currentPrice", "current_price"} {
		if p, ok := toDecimal(obj[key]); ok {
			price, found = p, true
			break
		}
	}
	if !found {
		return models.PriceQuote{}, false
	}

	return models.PriceQuote{
		Symbol:   symbol,
		Price:    price,
		Currency: strings.ToUpper(firstString(obj, "currency")),
	}, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func snippet(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
