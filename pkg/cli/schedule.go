package cli

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Re-run the RFM batch on a cron schedule",
	Long: `Registers "rfm run" on schedule.cron (seconds field first, e.g.
"0 0 6 * * 1" for Mondays 06:00) and keeps running until interrupted. Each
run overwrites the configured output files.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().Bool("run-now", false, "run once immediately after start")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("schedule"); err != nil {
		return err
	}
	log := zap.L().With(zap.String("command", "schedule"))

	c, job, err := newScheduler(cfg.Schedule.Cron, log, func() {
		if _, err := runPipeline(ctx, cfg, nil, true); err != nil {
			log.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	log.Info("scheduler started", zap.String("cron", cfg.Schedule.Cron))

	if runNow, _ := cmd.Flags().GetBool("run-now"); runNow {
		go job.Run()
	}

	<-ctx.Done()
	log.Info("shutdown signal received, waiting for running jobs")
	<-c.Stop().Done()
	return nil
}

// newScheduler registers fn on spec. Runs never overlap: a tick that fires
// while the previous run is still writing its files is skipped. The returned
// job shares that guard, for runs started outside the schedule.
func newScheduler(spec string, log *zap.Logger, fn func()) (*cron.Cron, cron.Job, error) {
	std := zap.NewStdLog(log)
	job := cron.NewChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(std))).Then(cron.FuncJob(fn))

	c := cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(std)))
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, nil, eris.Wrapf(err, "schedule: register %q", spec)
	}
	return c, job, nil
}
