// Package report derives dashboard totals, the income and expense report
// and the expense chart from a ledger snapshot.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Compile-time interface check
var _ interfaces.ReportService = (*Service)(nil)

// RecentActivityCount is how many transactions the dashboard shows.
const RecentActivityCount = 7

// Service implements ReportService. It is stateless apart from display
// settings.
type Service struct {
	currency  string
	usdRate   decimal.Decimal
	freshness time.Duration
	logger    *common.Logger
}

// NewService creates a report service from the display and price settings.
func NewService(config *common.Config, logger *common.Logger) *Service {
	return &Service{
		currency:  config.Display.BaseCurrency,
		usdRate:   decimal.NewFromFloat(config.Display.USDRate),
		freshness: config.Prices.GetFreshness(),
		logger:    logger,
	}
}

// toDisplay converts an amount to the display currency. Only USD is
// converted, at the fixed display rate; anything else is taken as is.
func (s *Service) toDisplay(amount decimal.Decimal, currency string) decimal.Decimal {
	if strings.EqualFold(strings.TrimSpace(currency), "USD") && !strings.EqualFold(s.currency, "USD") {
		return amount.Mul(s.usdRate)
	}
	return amount
}

// Dashboard computes cash, investment and net worth totals plus the most
// recent activity, oldest first.
func (s *Service) Dashboard(snap models.LedgerSnapshot) models.Dashboard {
	cash := decimal.Zero
	for _, a := range snap.Accounts {
		cash = cash.Add(s.toDisplay(a.Balance, a.Currency))
	}
	invest := decimal.Zero
	for _, h := range snap.Holdings {
		invest = invest.Add(s.toDisplay(h.MarketValue(), h.Currency))
	}
	net := cash.Add(invest)

	n := len(snap.Transactions)
	if n > RecentActivityCount {
		n = RecentActivityCount
	}
	recent := make([]models.Transaction, n)
	for i := 0; i < n; i++ {
		recent[i] = snap.Transactions[n-1-i]
	}

	return models.Dashboard{
		Currency:        s.currency,
		USDRate:         s.usdRate,
		TotalCash:       cash,
		TotalInvestment: invest,
		NetWorth:        net,
		Formatted: models.DashboardText{
			TotalCash:       FormatMoney(cash, s.currency),
			TotalInvestment: FormatMoney(invest, s.currency),
			NetWorth:        FormatMoney(net, s.currency),
		},
		RecentActivity: recent,
	}
}

// Report totals income and expense, breaks expense down by category
// (largest first) and lists every holding's performance.
func (s *Service) Report(snap models.LedgerSnapshot) models.Report {
	income := decimal.Zero
	expense := decimal.Zero
	byCategory := map[string]decimal.Decimal{}
	for _, tx := range snap.Transactions {
		switch tx.Type {
		case models.TransactionTypeIncome:
			income = income.Add(tx.Amount)
		case models.TransactionTypeExpense:
			expense = expense.Add(tx.Amount)
			byCategory[tx.Category] = byCategory[tx.Category].Add(tx.Amount)
		}
	}

	categories := make([]models.CategoryTotal, 0, len(byCategory))
	for name, amount := range byCategory {
		categories = append(categories, models.CategoryTotal{Category: name, Amount: amount})
	}
	sort.Slice(categories, func(i, j int) bool {
		if c := categories[i].Amount.Cmp(categories[j].Amount); c != 0 {
			return c > 0
		}
		return categories[i].Category < categories[j].Category
	})

	holdings := make([]models.HoldingPerformance, 0, len(snap.Holdings))
	for _, h := range snap.Holdings {
		holdings = append(holdings, models.HoldingPerformance{
			Holding:          h,
			MarketValue:      h.MarketValue(),
			UnrealizedReturn: h.UnrealizedReturn(),
			ReturnPercent:    h.ReturnPercent().Round(2),
			Stale:            h.LastUpdated == nil || !common.IsFresh(*h.LastUpdated, s.freshness),
		})
	}

	return models.Report{
		TotalIncome:       income,
		TotalExpense:      expense,
		ExpenseByCategory: categories,
		Holdings:          holdings,
	}
}
