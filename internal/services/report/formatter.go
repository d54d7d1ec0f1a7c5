package report

import (
	"fmt"
	"strings"

	"github.com/bobmcallan/fintrack/internal/models"
)

// Markdown renders the dashboard and report as a markdown summary.
func (s *Service) Markdown(snap models.LedgerSnapshot) string {
	dash := s.Dashboard(snap)
	rep := s.Report(snap)

	var sb strings.Builder
	sb.WriteString("# Ledger Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Net Worth:** %s\n", dash.Formatted.NetWorth))
	sb.WriteString(fmt.Sprintf("**Cash:** %s\n", dash.Formatted.TotalCash))
	sb.WriteString(fmt.Sprintf("**Investments:** %s\n", dash.Formatted.TotalInvestment))
	sb.WriteString(fmt.Sprintf("*USD converted at %s %s per USD*\n\n", dash.USDRate.String(), dash.Currency))

	sb.WriteString("## Income vs Expense\n\n")
	sb.WriteString(fmt.Sprintf("| Income | Expense |\n|--------|---------|\n| %s | %s |\n\n",
		FormatMoney(rep.TotalIncome, s.currency), FormatMoney(rep.TotalExpense, s.currency)))

	if len(rep.ExpenseByCategory) > 0 {
		sb.WriteString("## Expenses by Category\n\n")
		sb.WriteString("| Category | Amount |\n|----------|--------|\n")
		for _, c := range rep.ExpenseByCategory {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", c.Category, FormatMoney(c.Amount, s.currency)))
		}
		sb.WriteString("\n")
	}

	if len(rep.Holdings) > 0 {
		sb.WriteString("## Holdings\n\n")
		sb.WriteString("| Symbol | Qty | Avg Cost | Price | Value | Return | Return % |\n")
		sb.WriteString("|--------|-----|----------|-------|-------|--------|----------|\n")
		for _, h := range rep.Holdings {
			price := FormatMoney(h.CurrentPrice, h.Currency)
			if h.Stale {
				price += " *"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
				h.Symbol, h.Quantity.String(),
				FormatMoney(h.AvgCost, h.Currency), price,
				FormatMoney(h.MarketValue, h.Currency),
				FormatSignedMoney(h.UnrealizedReturn, h.Currency),
				FormatSignedPct(h.ReturnPercent),
			))
		}
		sb.WriteString("\n\\* price older than the refresh window\n\n")
	}

	if len(dash.RecentActivity) > 0 {
		sb.WriteString("## Recent Activity\n\n")
		sb.WriteString("| Date | Type | Category | Amount | Note |\n|------|------|----------|--------|------|\n")
		for _, tx := range dash.RecentActivity {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				tx.Date, tx.Type, tx.Category, tx.Amount.StringFixed(2), tx.Note))
		}
	}

	return sb.String()
}
