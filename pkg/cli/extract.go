package cli

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-analytics/rfm-segments/pkg/csvio"
	"github.com/retail-analytics/rfm-segments/pkg/database"
	"github.com/retail-analytics/rfm-segments/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Export one market's purchases from the retail store to CSV",
	Long: `Reads every row of the configured country with a positive quantity from the
retail table and writes it to a CSV file that "rfm run --source csv" can read.

Examples:
  rfm extract --output Retail_in_UK.csv`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("output", "", "CSV path (default source.csv_path)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate("extract"); err != nil {
		return err
	}
	out := cfg.Source.CSVPath
	if cmd.Flags().Changed("output") {
		out, _ = cmd.Flags().GetString("output")
	}
	log := zap.L().With(zap.String("command", "extract"))

	db, _, err := database.Open(cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return eris.Wrap(err, "extract: open store")
	}
	defer db.Close()
	log.Info("connected to retail store", zap.String("driver", cfg.Store.Driver))

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return eris.Wrap(err, "extract: create folder")
	}
	f, err := os.Create(out)
	if err != nil {
		return eris.Wrap(err, "extract: create file")
	}
	defer f.Close()

	w, err := csvio.NewRetailWriter(f, cfg.Source.CSVEncoding)
	if err != nil {
		return err
	}
	n, err := database.ExtractRetail(cmd.Context(), db, database.Query{
		Driver:  cfg.Store.Driver,
		Table:   cfg.Store.Table,
		Country: cfg.Filter.Country,
	}, func(r models.RetailRecord) error { return w.Write(r) })
	if err != nil {
		return eris.Wrap(err, "extract: read retail")
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "extract: close file")
	}

	log.Info("extract complete",
		zap.String("country", cfg.Filter.Country),
		zap.Int("rows", n),
		zap.String("output", out),
	)
	return nil
}
