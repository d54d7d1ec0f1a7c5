package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is one record returned by the price oracle. Order and
// completeness relative to the requested symbols are not guaranteed.
type PriceQuote struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// PriceSyncResult summarises one price sync run.
type PriceSyncResult struct {
	Requested   int           `json:"requested"`
	Quoted      int           `json:"quoted"`
	Updated     int           `json:"updated"`
	Failed      int           `json:"failed"`
	Unmatched   []string      `json:"unmatched,omitempty"`
	OracleError string        `json:"oracle_error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}
