package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/config"
	"github.com/sells-group/citation-cli/internal/export"
	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run and inspect citation audits",
	Long:  "Commands for submitting citation audits, polling pending runs, and viewing results.",
}

// -- audit submit --

var auditSubmitCmd = &cobra.Command{
	Use:   "submit <location-id>",
	Short: "Submit a citation audit for a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initAudit(ctx, config.ModeAudit)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orchestrator.Submit(ctx, args[0])
		if run == nil {
			return eris.Wrap(err, "audit submit")
		}
		if err != nil {
			// The run exists but was not started; the next poll retries.
			zap.L().Warn("audit run submitted but not started",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- audit poll --

var auditPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Start submitted runs and reconcile completed reports",
	Long:  "Runs one polling pass over submitted and running audits. Intended to be triggered by an external scheduler.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initAudit(ctx, config.ModeAudit)
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = cfg.Poll.Limit
		}

		summary, err := env.Orchestrator.PollPending(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "audit poll")
		}

		zap.L().Info("audit poll complete",
			zap.Int("checked", summary.Checked),
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
		)
		return writeJSON(os.Stdout, summary)
	},
}

// -- audit fail --

var auditFailCmd = &cobra.Command{
	Use:   "fail <run-id>",
	Short: "Mark a pending audit run failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initAudit(ctx, config.ModeAudit)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.GetAuditRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audit fail")
		}

		reason, _ := cmd.Flags().GetString("reason")
		if err := env.Orchestrator.Fail(ctx, run, reason); err != nil {
			return eris.Wrap(err, "audit fail")
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- audit show --

var auditShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of an audit run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetAuditRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audit show")
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		location, _ := cmd.Flags().GetString("location")
		limit, _ := cmd.Flags().GetInt("limit")

		filter, err := buildAuditFilter(status, location, limit)
		if err != nil {
			return err
		}

		runs, err := st.ListAuditRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No audit runs found.")
			return nil
		}

		formatAuditRuns(os.Stdout, runs)
		return nil
	},
}

// -- audit export --

var auditExportCmd = &cobra.Command{
	Use:   "export <location-id>",
	Short: "Export a location's reconciled citations to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		listings, err := st.ListReconciledListings(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audit export")
		}

		out, _ := cmd.Flags().GetString("out")
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "audit export: create file")
		}
		if err := export.WriteCitationsXLSX(f, listings); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "audit export: close file")
		}

		zap.L().Info("citations exported",
			zap.String("location_id", args[0]),
			zap.Int("listings", len(listings)),
			zap.String("file", out),
		)
		return nil
	},
}

func init() {
	auditPollCmd.Flags().Int("limit", 0, "max runs to process (default from config)")

	auditFailCmd.Flags().String("reason", "manually failed", "failure reason recorded on the run")

	auditListCmd.Flags().String("status", "", "comma-separated statuses (submitted, running, completed, failed)")
	auditListCmd.Flags().String("location", "", "filter by location ID")
	auditListCmd.Flags().Int("limit", 50, "max number of runs to display")

	auditExportCmd.Flags().String("out", "citations.xlsx", "output XLSX file")

	auditCmd.AddCommand(auditSubmitCmd)
	auditCmd.AddCommand(auditPollCmd)
	auditCmd.AddCommand(auditFailCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

// buildAuditFilter parses list flags into a store filter.
func buildAuditFilter(statuses, location string, limit int) (store.AuditRunFilter, error) {
	filter := store.AuditRunFilter{LocationID: location, Limit: limit}
	for _, s := range strings.Split(statuses, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		status := model.AuditStatus(strings.ToLower(s))
		switch status {
		case model.AuditStatusSubmitted, model.AuditStatusRunning, model.AuditStatusCompleted, model.AuditStatusFailed:
			filter.Statuses = append(filter.Statuses, status)
		default:
			return store.AuditRunFilter{}, eris.Errorf("unknown audit status %q", s)
		}
	}
	return filter, nil
}

// formatAuditRuns writes a tabular list of audit runs to w.
func formatAuditRuns(out io.Writer, runs []model.AuditRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLOCATION\tSTATUS\tFOUND\tCORRECT\tINCORRECT\tMISSING\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t-----\t-------\t---------\t-------\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.LocationID,
			r.Status,
			r.TotalFound,
			r.TotalCorrect,
			r.TotalIncorrect,
			r.TotalMissing,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
