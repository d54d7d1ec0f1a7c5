package report

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the currency's display form, falling back
// to a plain two-decimal figure for currencies go-money does not know.
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), code).Display()
}

// FormatSignedMoney is FormatMoney with an explicit + for gains.
func FormatSignedMoney(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + FormatMoney(amount, currency)
	}
	return FormatMoney(amount, currency)
}

// FormatSignedPct renders a percentage with one decimal and its sign.
func FormatSignedPct(pct decimal.Decimal) string {
	s := pct.StringFixed(1) + "%"
	if pct.IsPositive() {
		return "+" + s
	}
	return s
}
