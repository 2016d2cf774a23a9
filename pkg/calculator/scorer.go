package calculator

import (
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/retail-analytics/rfm-segments/pkg/models"
	"github.com/retail-analytics/rfm-segments/pkg/segment"
)

// RecencyScore maps a recency value to 1..4. Low recency is a recent
// purchase, so the lowest quartile scores 4. Boundaries are inclusive.
func RecencyScore(x float64, q models.Quartiles) int {
	switch {
	case x <= q.P25:
		return 4
	case x <= q.P50:
		return 3
	case x <= q.P75:
		return 2
	default:
		return 1
	}
}

// ForwardScore maps a frequency or monetary value to 1..4, highest quartile
// scoring 4. Boundaries are inclusive.
func ForwardScore(x float64, q models.Quartiles) int {
	switch {
	case x <= q.P25:
		return 1
	case x <= q.P50:
		return 2
	case x <= q.P75:
		return 3
	default:
		return 4
	}
}

// Scorer scores customers against one run's quartile boundaries.
type Scorer struct {
	recency   models.Quartiles
	frequency models.Quartiles
	monetary  models.Quartiles
}

// NewScorer checks that b carries quartiles for every metric.
func NewScorer(b models.QuartileBoundaries) (*Scorer, error) {
	if b == nil {
		return nil, eris.Wrap(ErrMissingBoundary, "calculator: new scorer")
	}
	for _, m := range models.Metrics {
		if _, ok := b[m]; !ok {
			return nil, eris.Wrapf(ErrMissingBoundary, "calculator: no quartiles for %s", m)
		}
	}
	return &Scorer{
		recency:   b[models.Recency],
		frequency: b[models.Frequency],
		monetary:  b[models.Monetary],
	}, nil
}

// Score returns the scored row for c. c is copied, never modified.
func (s *Scorer) Score(c models.CustomerMetrics) models.ScoredCustomer {
	r := RecencyScore(float64(c.RecencyDays), s.recency)
	f := ForwardScore(float64(c.Frequency), s.frequency)
	m := ForwardScore(c.Monetary, s.monetary)
	return models.ScoredCustomer{
		CustomerMetrics: c,
		R:               r,
		F:               f,
		M:               m,
		Segment:         segment.Code(r, f, m),
	}
}

// ScoreAll scores every customer into a new slice in the same order. With
// workers > 1 the customers are split into contiguous chunks scored
// concurrently; each chunk writes only its own range of the output. A customer
// with a negative recency or a frequency below one fails the whole call with
// ErrInvalidMetrics.
func (s *Scorer) ScoreAll(customers []models.CustomerMetrics, workers int) ([]models.ScoredCustomer, error) {
	out := make([]models.ScoredCustomer, len(customers))
	scoreRange := func(start, end int) error {
		for i := start; i < end; i++ {
			c := customers[i]
			if c.RecencyDays < 0 || c.Frequency < 1 {
				return eris.Wrapf(ErrInvalidMetrics, "customer %s: recency %d, frequency %d",
					c.CustomerID, c.RecencyDays, c.Frequency)
			}
			out[i] = s.Score(c)
		}
		return nil
	}

	if workers <= 1 || len(customers) < workers {
		if err := scoreRange(0, len(customers)); err != nil {
			return nil, err
		}
		return out, nil
	}

	chunk := (len(customers) + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < len(customers); start += chunk {
		start := start
		end := min(start+chunk, len(customers))
		g.Go(func() error {
			return scoreRange(start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
