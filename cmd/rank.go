package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/rank"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank audited leads by PainScore",
}

var rankFileCmd = &cobra.Command{
	Use:   "file <csv>",
	Short: "Upload an audited CSV and rank it synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := rank.RankFile(ctx, env.API, args[0])
		if err != nil {
			return errorBanner("Ranking failed", err)
		}
		formatRanked(os.Stdout, res, limit)

		if out == "-" {
			return nil
		}
		if out == "" {
			out = filepath.Join(cfg.Export.Dir, csvtable.ExportName(csvtable.ExportRanked, time.Now(), csvtable.FormatCSV))
		}
		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		defer f.Close() //nolint:errcheck

		if err := rank.WriteCSV(f, res.Rows); err != nil {
			return eris.Wrap(err, "write ranked csv")
		}
		_, _ = fmt.Fprintf(os.Stderr, "Saved %s\n", out)
		return nil
	},
}

func init() {
	rankFileCmd.Flags().String("out", "", "output CSV path, or - to skip saving (default <export dir>/ranked_<date>.csv)")
	rankFileCmd.Flags().Int("limit", 20, "max rows to print (0 for all)")

	rankCmd.AddCommand(rankFileCmd)
	rootCmd.AddCommand(rankCmd)
}
