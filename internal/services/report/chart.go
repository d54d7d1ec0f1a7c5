package report

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/fintrack/internal/models"
)

// slice colours, cycled when there are more categories than colours
var palette = []drawing.Color{
	drawing.ColorFromHex("ef4444"), // red-500
	drawing.ColorFromHex("f59e0b"), // amber-500
	drawing.ColorFromHex("10b981"), // emerald-500
	drawing.ColorFromHex("3b82f6"), // blue-500
	drawing.ColorFromHex("8b5cf6"), // violet-500
	drawing.ColorFromHex("ec4899"), // pink-500
	drawing.ColorFromHex("6b7280"), // gray-500
}

// ExpenseChart renders the expense-by-category breakdown as a PNG pie.
// Returns models.ErrNotFound when there are no expenses.
func (s *Service) ExpenseChart(snap models.LedgerSnapshot) ([]byte, error) {
	categories := s.Report(snap).ExpenseByCategory
	if len(categories) == 0 {
		return nil, fmt.Errorf("no expenses to chart: %w", models.ErrNotFound)
	}

	values := make([]chart.Value, 0, len(categories))
	for i, c := range categories {
		amount, _ := c.Amount.Float64()
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %s", c.Category, FormatMoney(c.Amount, s.currency)),
			Value: amount,
			Style: chart.Style{
				FillColor:   palette[i%len(palette)],
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
			},
		})
	}

	pie := chart.PieChart{
		Title:  "Expenses by Category",
		Width:  600,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
