// Package stats computes the dashboard aggregates: windowed totals, the
// gap-free monthly spending series and the yearly category breakdown.
//
// Every computation runs over the full canonical collection on demand; all
// summation uses the raw numeric amount, never the display string.
package stats

import (
	"math"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

// IncludedCategories is the fixed column set of the category breakdown.
// Education and Miscellaneous are deliberately outside it: they are excluded
// from both the per-category columns and the row totals.
var IncludedCategories = []core.Category{
	core.CategoryHabitat,
	core.CategoryFood,
	core.CategoryElectronics,
	core.CategoryMobility,
	core.CategoryLeisure,
}

// MonthBucket is one point of the monthly spending series. Amount is rounded
// to the nearest integer for display.
type MonthBucket struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"` // 1-12
	Label  string `json:"label"` // e.g. "Jan"
	Amount int64  `json:"amount"`
}

// BreakdownRow holds one calendar month of the category breakdown. Amounts
// aligns index-for-index with Breakdown.Categories.
type BreakdownRow struct {
	Month   int       `json:"month"` // 1-12
	Label   string    `json:"label"`
	Amounts []float64 `json:"amounts"`
	Total   float64   `json:"total"` // sum of the included columns only
}

// Breakdown is the per-month, per-category view for one calendar year.
type Breakdown struct {
	Year       int             `json:"year"`
	Categories []core.Category `json:"categories"`
	Rows       []BreakdownRow  `json:"rows"`
	Totals     []float64       `json:"totals"` // yearly sum per included category
	Total      float64         `json:"total"`
}

// KPI carries the headline numbers for the stat cards.
type KPI struct {
	TotalSpend   float64 `json:"totalSpend"`
	InvoiceCount int     `json:"invoiceCount"`
	ReceiptCount int     `json:"receiptCount"`
	TotalCount   int     `json:"totalCount"`
}

// TotalSpend sums the raw amounts of records dated within [start, end],
// endpoints inclusive. Records without a real date never contribute.
func TotalSpend(records []core.Record, start, end time.Time) float64 {
	var total float64
	for _, r := range records {
		if inWindow(r, start, end) {
			total += r.RawAmount
		}
	}
	return total
}

// MonthlySeries buckets spending per calendar month over [start, end]. The
// endpoints are normalized to the first and last instant of their months, and
// every overlapped month yields a bucket even when its sum is zero, so the
// chart axis has no gaps. A zero-width interval still yields one bucket.
func MonthlySeries(records []core.Record, start, end time.Time) []MonthBucket {
	start = StartOfMonth(start)
	end = EndOfMonth(end)

	var buckets []MonthBucket
	index := make(map[string]int)
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 1, 0) {
		index[cursor.Format("2006-01")] = len(buckets)
		buckets = append(buckets, MonthBucket{
			Year:  cursor.Year(),
			Month: int(cursor.Month()),
			Label: cursor.Format("Jan"),
		})
	}

	sums := make([]float64, len(buckets))
	for _, r := range records {
		t, ok := r.Time()
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		if i, ok := index[t.Format("2006-01")]; ok {
			sums[i] += r.RawAmount
		}
	}
	for i := range buckets {
		buckets[i].Amount = int64(math.Round(sums[i]))
	}
	return buckets
}

// CategoryBreakdown computes per-month sums for one calendar year, restricted
// to IncludedCategories. Row and yearly totals count only those columns.
func CategoryBreakdown(records []core.Record, year int) Breakdown {
	b := Breakdown{
		Year:       year,
		Categories: IncludedCategories,
		Totals:     make([]float64, len(IncludedCategories)),
	}

	column := make(map[core.Category]int, len(IncludedCategories))
	for i, c := range IncludedCategories {
		column[c] = i
	}

	b.Rows = make([]BreakdownRow, 12)
	for m := 0; m < 12; m++ {
		b.Rows[m] = BreakdownRow{
			Month:   m + 1,
			Label:   time.Month(m + 1).String()[:3],
			Amounts: make([]float64, len(IncludedCategories)),
		}
	}

	for _, r := range records {
		t, ok := r.Time()
		if !ok || t.Year() != year {
			continue
		}
		col, included := column[r.Category]
		if !included {
			continue
		}
		row := &b.Rows[int(t.Month())-1]
		row.Amounts[col] += r.RawAmount
		row.Total += r.RawAmount
		b.Totals[col] += r.RawAmount
		b.Total += r.RawAmount
	}
	return b
}

// KPIs counts records by type and sums spending. With a window both the
// counts and the total are restricted to records dated inside it; without
// one the whole collection counts and undated records contribute to the sum.
func KPIs(records []core.Record, start, end *time.Time) KPI {
	var kpi KPI
	windowed := start != nil && end != nil
	for _, r := range records {
		if windowed && !inWindow(r, *start, *end) {
			continue
		}
		kpi.TotalCount++
		switch r.Type {
		case core.TypeReceipt:
			kpi.ReceiptCount++
		default:
			kpi.InvoiceCount++
		}
		kpi.TotalSpend += r.RawAmount
	}
	return kpi
}

func inWindow(r core.Record, start, end time.Time) bool {
	t, ok := r.Time()
	if !ok {
		return false
	}
	return !t.Before(start) && !t.After(end)
}

// StartOfMonth returns the first instant of t's month in t's location.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last instant of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// StartOfYear returns January 1st of t's year.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// EndOfYear returns the last instant of t's year.
func EndOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.December, 31, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
