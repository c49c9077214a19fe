package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/config"
	"github.com/sells-group/citation-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Audit health monitoring",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Collect audit metrics, evaluate alerts and send them to the webhook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, config.ModeMonitor)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		res, err := checker.CheckOnce(ctx)
		if err != nil {
			return eris.Wrap(err, "monitor check")
		}

		zap.L().Info("monitor check complete",
			zap.Int("alerts", len(res.Alerts)),
			zap.Int("sent", res.Sent),
		)
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	monitorCmd.AddCommand(monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}
