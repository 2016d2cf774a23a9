package calculator

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// Period is a half-open analysis window [Start, End) in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Until clips the window so it ends with the reference date's day.
func (p Period) Until(asOf time.Time) Period {
	end := dateOf(asOf).AddDate(0, 0, 1)
	if end.Before(p.End) {
		p.End = end
	}
	return p
}

func (p Period) String() string {
	return fmt.Sprintf("%s-%s", formatMonth(p.Start), formatMonth(p.End.AddDate(0, -1, 0)))
}

// YearPeriod covers January to December of year.
func YearPeriod(year int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// PeriodFromConfig builds the window from MMYYYY bounds, both inclusive.
func PeriodFromConfig(cfg models.Config) (Period, error) {
	start, err := parseMonth(cfg.StartMonthInclusive)
	if err != nil {
		return Period{}, eris.Wrap(err, "calculator: start_month")
	}
	end, err := parseMonth(cfg.EndMonthInclusive)
	if err != nil {
		return Period{}, eris.Wrap(err, "calculator: end_month")
	}
	if end.Before(start) {
		return Period{}, eris.New("calculator: end_month < start_month")
	}
	return Period{Start: start, End: end.AddDate(0, 1, 0)}, nil
}

// FilterPeriod returns the rows whose invoice timestamp falls inside p.
func FilterPeriod(rows []models.TransactionRow, p Period) []models.TransactionRow {
	out := make([]models.TransactionRow, 0, len(rows))
	for _, r := range rows {
		if p.Contains(r.InvoiceTimestamp) {
			out = append(out, r)
		}
	}
	return out
}

// LastInvoiceDate returns the latest invoice date (time-of-day dropped), or
// false when rows is empty.
func LastInvoiceDate(rows []models.TransactionRow) (time.Time, bool) {
	var last time.Time
	for _, r := range rows {
		if r.InvoiceTimestamp.After(last) {
			last = r.InvoiceTimestamp
		}
	}
	if last.IsZero() {
		return time.Time{}, false
	}
	return dateOf(last), true
}

// Summarize describes the prepared rows before any metric is computed.
func Summarize(rows []models.TransactionRow) models.DatasetSummary {
	invoices := map[string]struct{}{}
	products := map[string]struct{}{}
	customers := map[string]struct{}{}
	var s models.DatasetSummary
	revenue := 0.0
	for _, r := range rows {
		invoices[r.InvoiceID] = struct{}{}
		products[r.StockCode] = struct{}{}
		customers[r.CustomerID] = struct{}{}
		s.TotalQuantity += r.Quantity
		revenue += r.LineTotal()
	}
	s.Transactions = len(invoices)
	s.Products = len(products)
	s.Customers = len(customers)
	s.Revenue = math.Round(revenue)
	return s
}

// parseMonth("MMYYYY") -> first day of the month, UTC
func parseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, eris.Errorf("expected MMYYYY (e.g. 012023), got %q", mmyyyy)
	}
	for i := 0; i < len(mmyyyy); i++ {
		if mmyyyy[i] < '0' || mmyyyy[i] > '9' {
			return time.Time{}, eris.Errorf("expected MMYYYY (e.g. 012023), got %q", mmyyyy)
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, eris.Errorf("invalid month %d", month)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func formatMonth(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}

// dateOf drops the time-of-day, keeping the wall-clock date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
