// Package cli holds the rfm command tree.
package cli

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retail-analytics/rfm-segments/pkg/config"
)

var (
	cfg     *config.Config
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "rfm",
	Short: "RFM customer segmentation for retail transactions",
	Long: `Loads one market's retail transactions, computes per-customer Recency,
Frequency and Monetary metrics for a fixed analysis window, scores each metric
by quartile and groups customers into configurable cohorts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./config.yaml)")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
