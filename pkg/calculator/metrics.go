package calculator

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// Aggregation is the Metric Aggregator output: one row per customer, ordered
// by customer id, plus the customers dropped by the inner join.
type Aggregation struct {
	Customers []models.CustomerMetrics
	// IncompleteJoin lists customers present in some metric partials but not
	// in all three. They are absent from Customers.
	IncompleteJoin []string
}

// Aggregate reduces transaction rows to Recency, Frequency and Monetary per
// customer. Each metric is computed on its own and the three partials are
// inner-joined on customer id.
func Aggregate(rows []models.TransactionRow, asOf time.Time) (*Aggregation, error) {
	recency, err := recencyByCustomer(rows, asOf)
	if err != nil {
		return nil, err
	}
	frequency := frequencyByCustomer(rows)
	monetary := monetaryByCustomer(rows)

	customers, dropped := joinMetrics(recency, frequency, monetary)
	return &Aggregation{Customers: customers, IncompleteJoin: dropped}, nil
}

// recencyByCustomer returns days between asOf and each customer's last
// invoice date. Time-of-day is ignored on both sides.
func recencyByCustomer(rows []models.TransactionRow, asOf time.Time) (map[string]int, error) {
	ref := dateOf(asOf)
	last := map[string]time.Time{}
	for _, r := range rows {
		d := dateOf(r.InvoiceTimestamp)
		if d.After(ref) {
			return nil, eris.Wrapf(ErrFutureTransaction, "invoice %s of customer %s dated %s, reference %s",
				r.InvoiceID, r.CustomerID, d.Format(time.DateOnly), ref.Format(time.DateOnly))
		}
		if cur, ok := last[r.CustomerID]; !ok || d.After(cur) {
			last[r.CustomerID] = d
		}
	}

	out := make(map[string]int, len(last))
	for id, d := range last {
		out[id] = int(ref.Sub(d).Hours() / 24)
	}
	return out, nil
}

type purchaseKey struct {
	customerID string
	at         time.Time
}

// frequencyByCustomer counts distinct invoices per customer once line-level
// duplicates sharing (invoice timestamp, customer) have been dropped. The
// first row of each duplicate group is kept, in input order.
func frequencyByCustomer(rows []models.TransactionRow) map[string]int {
	seen := map[purchaseKey]struct{}{}
	invoices := map[string]map[string]struct{}{}
	for _, r := range rows {
		k := purchaseKey{customerID: r.CustomerID, at: r.InvoiceTimestamp.UTC()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		set, ok := invoices[r.CustomerID]
		if !ok {
			set = map[string]struct{}{}
			invoices[r.CustomerID] = set
		}
		set[r.InvoiceID] = struct{}{}
	}

	out := make(map[string]int, len(invoices))
	for id, set := range invoices {
		out[id] = len(set)
	}
	return out
}

// monetaryByCustomer sums quantity × unit price over every line item.
func monetaryByCustomer(rows []models.TransactionRow) map[string]float64 {
	out := map[string]float64{}
	for _, r := range rows {
		out[r.CustomerID] += r.LineTotal()
	}
	return out
}

// joinMetrics inner-joins the three partials. Customers missing from any
// partial are returned in dropped, sorted.
func joinMetrics(recency, frequency map[string]int, monetary map[string]float64) ([]models.CustomerMetrics, []string) {
	ids := map[string]struct{}{}
	for id := range recency {
		ids[id] = struct{}{}
	}
	for id := range frequency {
		ids[id] = struct{}{}
	}
	for id := range monetary {
		ids[id] = struct{}{}
	}

	customers := make([]models.CustomerMetrics, 0, len(recency))
	var dropped []string
	for id := range ids {
		r, okR := recency[id]
		f, okF := frequency[id]
		m, okM := monetary[id]
		if !okR || !okF || !okM {
			dropped = append(dropped, id)
			continue
		}
		customers = append(customers, models.CustomerMetrics{
			CustomerID:  id,
			RecencyDays: r,
			Frequency:   f,
			Monetary:    m,
		})
	}

	sort.Slice(customers, func(i, j int) bool { return customers[i].CustomerID < customers[j].CustomerID })
	sort.Strings(dropped)
	return customers, dropped
}
