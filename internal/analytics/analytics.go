// Package analytics derives the dashboard figures from a product list:
// totals, chart series and per-product breakdowns. Inputs are never modified.
package analytics

import (
	"cmp"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"profitdash/internal/core"
)

// Chart colours, shared with the templates and the JSON chart endpoints.
const (
	ColorSales     = "#3B82F6"
	ColorProfit    = "#10B981"
	ColorExpense   = "#EF4444"
	ColorTE        = "#F59E0B"
	ColorCredit    = "#3B82F6"
	ColorCreditBar = "#8B5CF6"
	ColorFee       = "#EF4444"
)

// DefaultTopN is how many products the top-performers list shows.
const DefaultTopN = 5

// Summary holds the aggregate figures of a product list. Money totals are
// rounded to cents.
type Summary struct {
	ProductCount            int     `json:"productCount"`
	TotalSales              float64 `json:"totalSales"`
	TotalProfit             float64 `json:"totalProfit"`
	TotalExpenses           float64 `json:"totalExpenses"`
	TotalCredit             float64 `json:"totalCredit"`
	AverageProfitPercentage float64 `json:"averageProfitPercentage"`
	MedianProfitPercentage  float64 `json:"medianProfitPercentage"`
	// ProfitMargin is total profit over total sales, in percent; zero without sales.
	ProfitMargin float64 `json:"profitMargin"`
}

// SeriesPoint is one bar group of the profit chart.
type SeriesPoint struct {
	ProductID        string  `json:"id"`
	Name             string  `json:"name"`
	FullName         string  `json:"fullName"`
	Sales            float64 `json:"sales"`
	Profit           float64 `json:"profit"`
	ProfitPercentage float64 `json:"profitPercentage"`
}

// Slice is one labelled value of a pie or bar chart.
type Slice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// ProductBreakdown is the data behind the product details page.
type ProductBreakdown struct {
	Product core.Product `json:"product"`
	Pie     []Slice      `json:"pie"`
	Bar     []Slice      `json:"bar"`
}

// Summarize computes the totals of products.
func Summarize(products []core.Product) Summary {
	if len(products) == 0 {
		return Summary{}
	}

	var sales, profit, expenses, credit decimal.Decimal
	percentages := make(stats.Float64Data, 0, len(products))
	for _, p := range products {
		sales = sales.Add(decimal.NewFromFloat(p.Sales))
		profit = profit.Add(decimal.NewFromFloat(p.Profit))
		expenses = expenses.Add(decimal.NewFromFloat(p.TotalExpense)).Add(decimal.NewFromFloat(p.MarketplaceFee))
		credit = credit.Add(decimal.NewFromFloat(p.Credit))
		percentages = append(percentages, p.ProfitPercentage)
	}

	s := Summary{
		ProductCount:  len(products),
		TotalSales:    sales.Round(2).InexactFloat64(),
		TotalProfit:   profit.Round(2).InexactFloat64(),
		TotalExpenses: expenses.Round(2).InexactFloat64(),
		TotalCredit:   credit.Round(2).InexactFloat64(),
	}

	// stats only fails on empty input, which is handled above.
	if mean, err := stats.Mean(percentages); err == nil {
		s.AverageProfitPercentage = mean
	}
	if median, err := stats.Median(percentages); err == nil {
		s.MedianProfitPercentage = median
	}
	if !sales.IsZero() {
		s.ProfitMargin = profit.Div(sales).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return s
}

// ProfitSeries returns one point per product in upload order, with names
// shortened for the chart axis.
func ProfitSeries(products []core.Product) []SeriesPoint {
	out := make([]SeriesPoint, 0, len(products))
	for _, p := range products {
		out = append(out, SeriesPoint{
			ProductID:        p.ID,
			Name:             core.TruncateName(p.Name, core.DefaultNameLimit),
			FullName:         p.Name,
			Sales:            p.Sales,
			Profit:           p.Profit,
			ProfitPercentage: p.ProfitPercentage,
		})
	}
	return out
}

// ProfitVsExpenses is the two-slice pie of the profit tab. Slices that are
// not positive are left out.
func ProfitVsExpenses(s Summary) []Slice {
	return positive([]Slice{
		{Name: "Total Profit", Value: s.TotalProfit, Color: ColorProfit},
		{Name: "Total Expenses", Value: s.TotalExpenses, Color: ColorExpense},
	})
}

// TopProducts returns the n most profitable products, best first. Ties keep
// upload order. n <= 0 means DefaultTopN.
func TopProducts(products []core.Product, n int) []core.Product {
	if n <= 0 {
		n = DefaultTopN
	}
	sorted := slices.Clone(products)
	slices.SortStableFunc(sorted, func(a, b core.Product) int {
		return cmp.Compare(b.Profit, a.Profit)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Breakdown returns the pie (positive cost and profit parts only) and bar
// data for one product.
func Breakdown(p core.Product) ProductBreakdown {
	return ProductBreakdown{
		Product: p,
		Pie: positive([]Slice{
			{Name: "Profit", Value: p.Profit, Color: ColorProfit},
			{Name: "TE", Value: p.TotalExpense, Color: ColorTE},
			{Name: "Credit", Value: p.Credit, Color: ColorCredit},
			{Name: "Amazon Fee", Value: p.MarketplaceFee, Color: ColorFee},
		}),
		Bar: []Slice{
			{Name: "Sales", Value: p.Sales, Color: ColorSales},
			{Name: "Profit", Value: p.Profit, Color: ColorProfit},
			{Name: "TE", Value: p.TotalExpense, Color: ColorTE},
			{Name: "Credit", Value: p.Credit, Color: ColorCreditBar},
			{Name: "Amazon Fee", Value: p.MarketplaceFee, Color: ColorFee},
		},
	}
}

// Share returns each slice's percentage of the slice total, used for pie labels.
func Share(parts []Slice) []float64 {
	total := decimal.Zero
	for _, s := range parts {
		total = total.Add(decimal.NewFromFloat(s.Value))
	}
	out := make([]float64, len(parts))
	if total.IsZero() {
		return out
	}
	for i, s := range parts {
		out[i] = decimal.NewFromFloat(s.Value).Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
	}
	return out
}

// Scale maps each slice value onto 0..100 relative to the largest absolute
// value, so the templates can draw bars without a charting library.
func Scale(parts []Slice) []float64 {
	var peak float64
	for _, s := range parts {
		peak = max(peak, abs(s.Value))
	}
	out := make([]float64, len(parts))
	if peak == 0 {
		return out
	}
	for i, s := range parts {
		out[i] = abs(s.Value) / peak * 100
	}
	return out
}

func positive(in []Slice) []Slice {
	out := in[:0:0]
	for _, s := range in {
		if s.Value > 0 {
			out = append(out, s)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
