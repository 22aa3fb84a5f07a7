package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/wizard"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Step through extract, enrich, audit and rank with saved progress",
	Long: `The wizard keeps its progress (current job, selection and filters) in the
local store, so each subcommand picks up where the previous one left off.`,
}

// openWizard builds the flow and resumes saved state. A preview that can no
// longer be downloaded is logged and the state is kept.
func openWizard(ctx context.Context) (*clientEnv, *wizard.Flow, error) {
	env, err := initClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	var current wizard.Step
	var printer func(int)
	flow := env.Wizard(wizard.WithReporter(func(step wizard.Step, pct int) {
		if step != current {
			current, printer = step, progressPrinter(os.Stderr, stepLabel(step))
		}
		printer(pct)
	}))

	if _, err := flow.Resume(ctx); err != nil {
		zap.L().Warn("wizard: resume incomplete", zap.Error(err))
		_, _ = fmt.Fprintf(os.Stderr, "Could not reload the previous results: %s\n", err)
	}
	return env, flow, nil
}

func parseRowIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id < 0 {
			return nil, eris.Errorf("invalid row id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func stepLabel(step wizard.Step) string {
	switch step {
	case wizard.StepExtract:
		return "Extracting"
	case wizard.StepEnrich:
		return "Enriching"
	case wizard.StepAudit:
		return "Auditing"
	case wizard.StepRank:
		return "Ranking"
	}
	return string(step)
}

// wizardRun wraps a step subcommand: resume, run, then print the preview.
func wizardRun(kind string, run func(ctx context.Context, cmd *cobra.Command, flow *wizard.Flow) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, flow, err := openWizard(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := run(ctx, cmd, flow); err != nil {
			return wizardFailure(kind, err)
		}
		formatWizard(flow, wizardPreviewRows)
		return nil
	}
}

// wizardFailure maps a step error to the same banners the one-shot
// commands print.
func wizardFailure(kind string, err error) error {
	var startErr *wizard.StartError
	if errors.As(err, &startErr) {
		return errorBanner(startBanner(startErr.Step), startErr.Err)
	}
	return pollFailure(kind, err)
}

func startBanner(step wizard.Step) string {
	switch step {
	case wizard.StepExtract:
		return "Failed to start extraction"
	case wizard.StepEnrich:
		return "Failed to start enrichment"
	case wizard.StepAudit:
		return "Failed to start audit"
	case wizard.StepRank:
		return "Failed to start ranking"
	}
	return "Failed to start " + string(step)
}

const wizardPreviewRows = 20

func formatWizard(flow *wizard.Flow, limit int) {
	s := flow.State()
	_, _ = fmt.Fprintf(os.Stdout, "Search: %s in %s\n", s.Keyword, s.Location)
	if s.HasResults() {
		_, _ = fmt.Fprintf(os.Stdout, "Step: %s  Job: %s  File: %s  Enriched: %t\n", s.Step, s.JobID, s.ResultFile, s.Enriched)
	}
	sel := flow.Selection()
	if sel.Table().Len() == 0 {
		return
	}
	_, _ = fmt.Fprintln(os.Stdout)
	formatPreview(os.Stdout, sel, limit)
	_, _ = fmt.Fprintln(os.Stdout)
	formatStats(os.Stdout, sel.Stats(csvtable.DefaultCategories))
}

// -- wizard extract / enrich / audit / rank --

var wizardExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Start a new search, clearing previous results",
	RunE: wizardRun("Job", func(ctx context.Context, cmd *cobra.Command, flow *wizard.Flow) error {
		keyword, _ := cmd.Flags().GetString("keyword")
		location, _ := cmd.Flags().GetString("location")
		_, err := flow.Extract(ctx, keyword, location)
		return err
	}),
}

var wizardEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich the selected rows, or every row when nothing is selected",
	RunE: wizardRun("Enrichment", func(ctx context.Context, _ *cobra.Command, flow *wizard.Flow) error {
		_, err := flow.Enrich(ctx)
		return err
	}),
}

var wizardAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the selected rows, or every row when nothing is selected",
	RunE: wizardRun("Audit", func(ctx context.Context, cmd *cobra.Command, flow *wizard.Flow) error {
		limit, _ := cmd.Flags().GetInt("limit")
		_, err := flow.Audit(ctx, limit)
		return err
	}),
}

var wizardRankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the current results by PainScore",
	RunE: wizardRun("Ranking", func(ctx context.Context, _ *cobra.Command, flow *wizard.Flow) error {
		_, err := flow.Rank(ctx)
		return err
	}),
}

// -- wizard show --

var wizardShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved progress and the current preview",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		env, flow, err := openWizard(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if s := flow.State(); s.Keyword == "" && !s.HasResults() {
			_, _ = fmt.Fprintln(os.Stderr, "Nothing saved. Start with: leadgen wizard extract --keyword ... --location ...")
			return nil
		}
		formatWizard(flow, limit)
		return nil
	},
}

// -- wizard select --

var wizardSelectCmd = &cobra.Command{
	Use:   "select [row-id...]",
	Short: "Toggle row selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")

		ids, err := parseRowIDs(args)
		if err != nil {
			return err
		}
		if !all && len(ids) == 0 {
			return eris.New("pass row ids or --all")
		}

		env, flow, err := openWizard(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if all {
			err = flow.ToggleSelectAllVisible(ctx)
		} else {
			err = flow.ToggleRows(ctx, ids...)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d rows selected.\n", len(flow.Selection().Selected()))
		return nil
	},
}

// -- wizard filter --

var wizardFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Set the search text or toggle \"has value\" column filters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		columns, _ := cmd.Flags().GetIntSlice("column")
		clearAll, _ := cmd.Flags().GetBool("clear")

		env, flow, err := openWizard(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if clearAll {
			if err := flow.ClearFilters(ctx); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("search") {
			search, _ := cmd.Flags().GetString("search")
			if err := flow.SetFilter(ctx, search); err != nil {
				return err
			}
		}
		for _, c := range columns {
			if err := flow.ToggleColumnFilter(ctx, c); err != nil {
				return err
			}
		}
		formatWizard(flow, wizardPreviewRows)
		return nil
	},
}

// -- wizard export --

var wizardExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the previewed rows to a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		selected, _ := cmd.Flags().GetBool("selected")
		limit, _ := cmd.Flags().GetInt("limit")
		dir, _ := cmd.Flags().GetString("dir")
		formatName, _ := cmd.Flags().GetString("format")

		if dir == "" {
			dir = cfg.Export.Dir
		}
		if formatName == "" {
			formatName = cfg.Export.Format
		}
		format, err := csvtable.ParseFormat(formatName)
		if err != nil {
			return err
		}

		env, flow, err := openWizard(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		path, err := flow.Export(dir, wizard.ExportOptions{
			SelectedOnly: selected,
			Limit:        limit,
			Format:       format,
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Exported %s\n", path)
		return nil
	},
}

// -- wizard reset --

var wizardResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the saved wizard progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Wizard().Reset(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, "Wizard reset.")
		return nil
	},
}

func init() {
	wizardExtractCmd.Flags().String("keyword", "", "business type to search for")
	wizardExtractCmd.Flags().String("location", "", "city or region to search in")

	wizardAuditCmd.Flags().Int("limit", 10, "max rows to audit (0 for all)")

	wizardShowCmd.Flags().Int("limit", wizardPreviewRows, "max rows to print (0 for all)")

	wizardSelectCmd.Flags().Bool("all", false, "toggle every visible row")

	wizardFilterCmd.Flags().String("search", "", "case-insensitive substring filter (empty clears it)")
	wizardFilterCmd.Flags().IntSlice("column", nil, "toggle the has-value filter on these column indices")
	wizardFilterCmd.Flags().Bool("clear", false, "drop all filters first")

	wizardExportCmd.Flags().Bool("selected", false, "export only selected rows")
	wizardExportCmd.Flags().Int("limit", 0, "export the first N rows (0 for all)")
	wizardExportCmd.Flags().String("dir", "", "output directory (default export.dir)")
	wizardExportCmd.Flags().String("format", "", "csv or xlsx (default export.format)")

	wizardCmd.AddCommand(wizardExtractCmd)
	wizardCmd.AddCommand(wizardEnrichCmd)
	wizardCmd.AddCommand(wizardAuditCmd)
	wizardCmd.AddCommand(wizardRankCmd)
	wizardCmd.AddCommand(wizardShowCmd)
	wizardCmd.AddCommand(wizardSelectCmd)
	wizardCmd.AddCommand(wizardFilterCmd)
	wizardCmd.AddCommand(wizardExportCmd)
	wizardCmd.AddCommand(wizardResetCmd)
	rootCmd.AddCommand(wizardCmd)
}
