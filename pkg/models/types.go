package models

import (
	"time"
)

/*
LOAD → plain records read from the retail store.
*/

// TransactionRow is one purchase line as read from the retail table, already
// filtered to the target country, positive quantities and non-null customers.
type TransactionRow struct {
	InvoiceID        string
	CustomerID       string
	StockCode        string
	Quantity         int
	UnitPrice        float64
	InvoiceTimestamp time.Time
}

// LineTotal is quantity × unit price for the line.
func (r TransactionRow) LineTotal() float64 {
	return float64(r.Quantity) * r.UnitPrice
}

// RetailRecord is a full row of the retail table, used by the extract command.
type RetailRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int
	InvoiceDate time.Time
	UnitPrice   float64
	CustomerID  string
	Country     string
}

/*
COMPUTE → per-customer tables handed from one stage to the next.
*/

// Metric names one of the three RFM metrics.
type Metric string

const (
	Recency   Metric = "Recency"
	Frequency Metric = "Frequency"
	Monetary  Metric = "Monetary"
)

// Metrics lists the RFM metrics in column order.
var Metrics = []Metric{Recency, Frequency, Monetary}

// CustomerMetrics holds the three raw RFM values of one customer.
type CustomerMetrics struct {
	CustomerID  string  `json:"customer_id" yaml:"customer_id"`
	RecencyDays int     `json:"recency" yaml:"recency"`
	Frequency   int     `json:"frequency" yaml:"frequency"`
	Monetary    float64 `json:"monetary" yaml:"monetary"`
}

// Value returns the metric as a float for quartile estimation and scoring.
func (c CustomerMetrics) Value(m Metric) float64 {
	switch m {
	case Recency:
		return float64(c.RecencyDays)
	case Frequency:
		return float64(c.Frequency)
	case Monetary:
		return c.Monetary
	}
	return 0
}

// Quartiles are the 25th, 50th and 75th percentile of one metric.
type Quartiles struct {
	P25 float64 `json:"p25" yaml:"p25"`
	P50 float64 `json:"p50" yaml:"p50"`
	P75 float64 `json:"p75" yaml:"p75"`
}

// QuartileBoundaries maps each metric to its quartiles for one run.
type QuartileBoundaries map[Metric]Quartiles

// ScoredCustomer is a CustomerMetrics row extended with its ordinal scores.
type ScoredCustomer struct {
	CustomerMetrics `yaml:",inline"`

	R       int    `json:"r" yaml:"r"`
	F       int    `json:"f" yaml:"f"`
	M       int    `json:"m" yaml:"m"`
	Segment string `json:"segment" yaml:"segment"`
}

/*
REPORT → derived summaries.
*/

// CohortSummary is the membership of one named cohort.
type CohortSummary struct {
	Name    string   `json:"name" yaml:"name"`
	Expr    string   `json:"expr" yaml:"expr"`
	Count   int      `json:"count" yaml:"count"`
	Members []string `json:"members" yaml:"members"`
}

// DatasetSummary describes the prepared transaction set of a run.
type DatasetSummary struct {
	Transactions  int     `json:"transactions" yaml:"transactions"`
	Products      int     `json:"products" yaml:"products"`
	Customers     int     `json:"customers" yaml:"customers"`
	TotalQuantity int     `json:"total_quantity" yaml:"total_quantity"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
}

/*
CONFIG → parameters of one computation.
*/

// Config holds the parameters passed to the calculator.
type Config struct {
	StartMonthInclusive string    // "MMYYYY"
	EndMonthInclusive   string    // "MMYYYY"
	AsOf                time.Time // reference date for recency, date component only
	Workers             int       // scoring goroutines, <= 1 scores inline
}
