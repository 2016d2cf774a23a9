package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-analytics/rfm-segments/pkg/calculator"
	"github.com/retail-analytics/rfm-segments/pkg/config"
	"github.com/retail-analytics/rfm-segments/pkg/csvio"
	"github.com/retail-analytics/rfm-segments/pkg/database"
	"github.com/retail-analytics/rfm-segments/pkg/export"
	"github.com/retail-analytics/rfm-segments/pkg/models"
	"github.com/retail-analytics/rfm-segments/pkg/segment"
)

var (
	runCohorts []string
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute RFM scores and cohorts",
	Long: `Loads the transactions of the configured market, keeps those inside the
analysis window, computes Recency/Frequency/Monetary per customer, scores them
by quartile and writes the scored table plus a cohort report.

Examples:
  # 2023, reference date 2023-12-09, from retail_data.db
  rfm run

  # From the extracted CSV, XLSX output
  rfm run --source csv --csv Retail_in_UK.csv --format xlsx --output out/rfm.xlsx

  # Only report two cohorts
  rfm run --cohort "Best Customers" --cohort "Lost Customers"`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("source", "", "transaction source: database or csv (overrides config)")
	f.String("csv", "", "path of the extracted CSV (overrides config)")
	f.Int("year", 0, "analysis year (overrides config)")
	f.String("start-month", "", "first month of the window, MMYYYY")
	f.String("end-month", "", "last month of the window, MMYYYY")
	f.String("as-of", "", "reference date YYYY-MM-DD; \"last\" uses the last invoice date")
	f.Int("workers", 0, "scoring goroutines (overrides config)")
	f.String("output", "", "scored table path (overrides config)")
	f.String("format", "", "scored table format: csv, xlsx or json")
	f.String("report", "", "report path, .yaml or .json (overrides config)")
	f.StringArrayVar(&runCohorts, "cohort", nil, "cohort to report (repeatable, default all)")
	f.BoolVar(&runQuiet, "quiet", false, "hide the progress bar")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	applyRunOverrides(cmd, cfg)
	if err := cfg.Validate("run"); err != nil {
		return err
	}

	outcome, err := runPipeline(cmd.Context(), cfg, runCohorts, runQuiet)
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), outcome, cfg.Output.TopN)
	return nil
}

func applyRunOverrides(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("source") {
		c.Source.Kind, _ = f.GetString("source")
	}
	if f.Changed("csv") {
		c.Source.CSVPath, _ = f.GetString("csv")
	}
	if f.Changed("year") {
		c.Analysis.Year, _ = f.GetInt("year")
	}
	if f.Changed("start-month") {
		c.Analysis.StartMonth, _ = f.GetString("start-month")
	}
	if f.Changed("end-month") {
		c.Analysis.EndMonth, _ = f.GetString("end-month")
	}
	if f.Changed("as-of") {
		c.Analysis.AsOf, _ = f.GetString("as-of")
	}
	if f.Changed("workers") {
		c.Analysis.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("output") {
		c.Output.Path, _ = f.GetString("output")
	}
	if f.Changed("format") {
		c.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("report") {
		c.Output.CohortsPath, _ = f.GetString("report")
	}
}

// runOutcome is what one pipeline run produced.
type runOutcome struct {
	Report export.Report
	Scored []models.ScoredCustomer
}

// runPipeline loads, filters, computes and writes one run.
func runPipeline(ctx context.Context, c *config.Config, cohortNames []string, quiet bool) (*runOutcome, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("command", "run"), zap.String("run_id", runID))

	period, err := resolvePeriod(c.Analysis)
	if err != nil {
		return nil, err
	}

	defs, err := c.CohortDefinitions()
	if err != nil {
		return nil, err
	}
	cohorts, err := segment.Compile(defs)
	if err != nil {
		return nil, eris.Wrap(err, "run: compile cohorts")
	}

	rows, err := loadRows(ctx, c)
	if err != nil {
		return nil, err
	}
	rows = calculator.FilterPeriod(rows, period)

	asOf, err := resolveAsOf(c.Analysis.AsOf, rows)
	if err != nil {
		return nil, err
	}
	if clipped := calculator.FilterPeriod(rows, period.Until(asOf)); len(clipped) < len(rows) {
		log.Warn("rows after reference date ignored",
			zap.Int("count", len(rows)-len(clipped)),
			zap.Time("as_of", asOf),
		)
		rows = clipped
	}

	summary := calculator.Summarize(rows)
	log.Info("data prepared",
		zap.String("period", period.String()),
		zap.Int("transactions", summary.Transactions),
		zap.Int("products", summary.Products),
		zap.Int("customers", summary.Customers),
		zap.Int("total_quantity", summary.TotalQuantity),
		zap.Float64("revenue", summary.Revenue),
	)

	var bar *progressbar.ProgressBar
	if quiet {
		bar = progressbar.DefaultSilent(int64(len(calculator.Stages)))
	} else {
		bar = progressbar.Default(int64(len(calculator.Stages)), "rfm")
	}
	res, err := calculator.Compute(rows, asOf, calculator.Options{
		Workers: c.Analysis.Workers,
		OnStage: func(s calculator.Stage) {
			bar.Describe(string(s))
			_ = bar.Add(1)
		},
	})
	_ = bar.Finish()
	if err != nil {
		return nil, eris.Wrap(err, "run: compute")
	}
	if n := len(res.IncompleteJoin); n > 0 {
		log.Warn("customers dropped by metric join",
			zap.Int("count", n),
			zap.Strings("customers", res.IncompleteJoin),
		)
	}

	summaries, err := cohorts.Summarize(res.Scored, cohortNames...)
	if err != nil {
		return nil, eris.Wrap(err, "run: cohorts")
	}

	format, err := export.ParseFormat(c.Output.Format)
	if err != nil {
		return nil, err
	}
	if err := export.WriteScoredFile(c.Output.Path, format, res.Scored); err != nil {
		return nil, err
	}

	report := export.Report{
		RunID:          runID,
		AsOf:           res.AsOf.Format(time.DateOnly),
		Period:         period.String(),
		Dataset:        summary,
		Boundaries:     export.BoundaryTable(res.Boundaries),
		IncompleteJoin: res.IncompleteJoin,
		Cohorts:        summaries,
	}
	if c.Output.CohortsPath != "" {
		if err := export.WriteReportFile(c.Output.CohortsPath, report); err != nil {
			return nil, err
		}
	}

	log.Info("rfm run complete",
		zap.Time("as_of", res.AsOf),
		zap.Int("customers", len(res.Scored)),
		zap.String("output", c.Output.Path),
		zap.String("report", c.Output.CohortsPath),
	)
	return &runOutcome{Report: report, Scored: res.Scored}, nil
}

func loadRows(ctx context.Context, c *config.Config) ([]models.TransactionRow, error) {
	log := zap.L().With(zap.String("source", c.Source.Kind))

	if c.Source.Kind == config.SourceCSV {
		f, err := os.Open(c.Source.CSVPath)
		if err != nil {
			return nil, eris.Wrap(err, "run: open csv")
		}
		defer f.Close()

		rows, stats, err := csvio.ReadTransactions(f, csvio.ReadOptions{
			Encoding: c.Source.CSVEncoding,
			Country:  c.Filter.Country,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "run: read %s", c.Source.CSVPath)
		}
		log.Info("transactions loaded",
			zap.String("path", c.Source.CSVPath),
			zap.Int("read", stats.Read),
			zap.Int("kept", len(rows)),
			zap.Int("skipped_no_customer", stats.SkippedNoUser),
			zap.Int("skipped_quantity", stats.SkippedQuantity),
			zap.Int("skipped_country", stats.SkippedCountry),
		)
		return rows, nil
	}

	db, _, err := database.Open(c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "run: open store")
	}
	defer db.Close()

	rows, stats, err := database.LoadTransactions(ctx, db, database.Query{
		Driver:  c.Store.Driver,
		Table:   c.Store.Table,
		Country: c.Filter.Country,
	})
	if err != nil {
		return nil, err
	}
	log.Info("transactions loaded",
		zap.String("driver", c.Store.Driver),
		zap.String("table", c.Store.Table),
		zap.Int("read", stats.Read),
		zap.Int("kept", len(rows)),
		zap.Int("skipped_no_customer", stats.SkippedNoUser),
	)
	return rows, nil
}

func resolvePeriod(a config.AnalysisConfig) (calculator.Period, error) {
	if a.StartMonth != "" || a.EndMonth != "" {
		return calculator.PeriodFromConfig(models.Config{
			StartMonthInclusive: a.StartMonth,
			EndMonthInclusive:   a.EndMonth,
		})
	}
	if a.Year <= 0 {
		return calculator.Period{}, eris.New("run: analysis year is required")
	}
	return calculator.YearPeriod(a.Year), nil
}

// resolveAsOf parses a YYYY-MM-DD reference date. Empty or "last" takes the
// last invoice date of rows.
func resolveAsOf(s string, rows []models.TransactionRow) (time.Time, error) {
	if s == "" || s == "last" {
		last, ok := calculator.LastInvoiceDate(rows)
		if !ok {
			return time.Time{}, eris.Wrap(calculator.ErrEmptyInput, "run: no invoice in window")
		}
		return last, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "run: as_of %q", s)
	}
	return t, nil
}

func printOutcome(w io.Writer, o *runOutcome, topN int) {
	d := o.Report.Dataset
	fmt.Fprintln(w, "Summary of data preparation")
	fmt.Fprintf(w, "  Number of transactions : %d\n", d.Transactions)
	fmt.Fprintf(w, "  Number of products     : %d\n", d.Products)
	fmt.Fprintf(w, "  Number of customers    : %d\n", d.Customers)
	fmt.Fprintf(w, "  Total sales quantity   : %d\n", d.TotalQuantity)
	fmt.Fprintf(w, "  Revenue                : %.0f\n", d.Revenue)
	fmt.Fprintf(w, "Reference date %s, %d customers scored\n", o.Report.AsOf, len(o.Scored))
	if n := len(o.Report.IncompleteJoin); n > 0 {
		fmt.Fprintf(w, "  %d customers dropped by metric join\n", n)
	}
	for _, m := range models.Metrics {
		q := o.Report.Boundaries[string(m)]
		fmt.Fprintf(w, "  %-9s p25=%.2f p50=%.2f p75=%.2f\n", m, q.P25, q.P50, q.P75)
	}
	fmt.Fprintln(w, "Cohorts")
	for _, s := range o.Report.Cohorts {
		top := segment.Top(s, topN)
		fmt.Fprintf(w, "  %s: %d\n", s.Name, s.Count)
		if len(top.Members) > 0 {
			fmt.Fprintf(w, "    top by monetary: %v\n", top.Members)
		}
	}
}
