package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check API reachability, the saved session and wizard state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		watch, _ := cmd.Flags().GetBool("watch")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.API, env.Session, env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		if watch {
			checker.Run(ctx, func(snap *monitoring.Snapshot, alerts []monitoring.Alert) {
				formatHealth(os.Stdout, snap, alerts)
				_, _ = fmt.Fprintln(os.Stdout)
			})
			return nil
		}

		snap, alerts, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		formatHealth(os.Stdout, snap, alerts)
		for _, a := range alerts {
			if a.Severity == "high" {
				return eris.New("health check failed")
			}
		}
		return nil
	},
}

func formatHealth(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	api := "unreachable"
	if snap.APIReachable {
		api = fmt.Sprintf("%s (%s)", snap.APIStatus, snap.APILatency.Round(time.Millisecond))
	}
	_, _ = fmt.Fprintf(w, "API:\t%s\n", api)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", snap.AuthState)
	if snap.TokenExpiresAt != nil {
		_, _ = fmt.Fprintf(w, "Token expires:\t%s\n", snap.TokenExpiresAt.Local().Format(time.DateTime))
	}
	if snap.WizardSaved {
		_, _ = fmt.Fprintf(w, "Wizard:\t%s %s (saved %s)\n",
			snap.WizardStep, snap.WizardJobID, snap.WizardUpdatedAt.Local().Format(time.DateTime))
	}
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "All checks passed.")
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}

func init() {
	doctorCmd.Flags().Bool("watch", false, "repeat the checks every monitoring.check_interval_secs")
	rootCmd.AddCommand(doctorCmd)
}
