package calculator

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// Stage names one step of the RFM computation.
type Stage string

const (
	StageAggregate Stage = "aggregate"
	StageQuartiles Stage = "quartiles"
	StageScore     Stage = "score"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageAggregate, StageQuartiles, StageScore}

// Options tunes a computation. The zero value scores inline and reports
// nothing.
type Options struct {
	Workers int
	// OnStage is called after each stage completes.
	OnStage func(Stage)
}

// Result is the output of one run. Every table is freshly allocated; no stage
// shares a slice with another.
type Result struct {
	AsOf           time.Time
	Metrics        []models.CustomerMetrics
	Boundaries     models.QuartileBoundaries
	Scored         []models.ScoredCustomer
	IncompleteJoin []string
}

// Compute runs Aggregate, EstimateQuartiles and scoring in sequence over
// rows. It fails with ErrEmptyInput when no customer remains, leaving no
// partial output.
func Compute(rows []models.TransactionRow, asOf time.Time, opts Options) (*Result, error) {
	notify := func(s Stage) {
		if opts.OnStage != nil {
			opts.OnStage(s)
		}
	}

	agg, err := Aggregate(rows, asOf)
	if err != nil {
		return nil, eris.Wrap(err, "calculator: aggregate")
	}
	if len(agg.Customers) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "calculator: aggregate")
	}
	notify(StageAggregate)

	bounds, err := EstimateQuartiles(agg.Customers)
	if err != nil {
		return nil, err
	}
	notify(StageQuartiles)

	scorer, err := NewScorer(bounds)
	if err != nil {
		return nil, err
	}
	scored, err := scorer.ScoreAll(agg.Customers, opts.Workers)
	if err != nil {
		return nil, eris.Wrap(err, "calculator: score")
	}
	notify(StageScore)

	return &Result{
		AsOf:           dateOf(asOf),
		Metrics:        agg.Customers,
		Boundaries:     bounds,
		Scored:         scored,
		IncompleteJoin: agg.IncompleteJoin,
	}, nil
}
