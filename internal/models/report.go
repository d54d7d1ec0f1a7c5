package models

import "github.com/shopspring/decimal"

// Dashboard holds the headline totals in the display currency.
type Dashboard struct {
	Currency        string          `json:"currency"`
	USDRate         decimal.Decimal `json:"usd_rate"`
	TotalCash       decimal.Decimal `json:"total_cash"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	NetWorth        decimal.Decimal `json:"net_worth"`
	Formatted       DashboardText   `json:"formatted"`
	RecentActivity  []Transaction   `json:"recent_activity"`
}

// DashboardText holds the display-formatted dashboard totals.
type DashboardText struct {
	TotalCash       string `json:"total_cash"`
	TotalInvestment string `json:"total_investment"`
	NetWorth        string `json:"net_worth"`
}

// CategoryTotal is one slice of the expense breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// HoldingPerformance is a holding with its derived return figures.
type HoldingPerformance struct {
	Holding
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedReturn decimal.Decimal `json:"unrealized_return"`
	ReturnPercent    decimal.Decimal `json:"return_percent"`
	Stale            bool            `json:"stale"`
}

// Report is the income/expense and performance report.
type Report struct {
	TotalIncome       decimal.Decimal      `json:"total_income"`
	TotalExpense      decimal.Decimal      `json:"total_expense"`
	ExpenseByCategory []CategoryTotal      `json:"expense_by_category"`
	Holdings          []HoldingPerformance `json:"holdings"`
}
