package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/poller"
	"github.com/sells-group/leadgen-cli/internal/rank"
	"github.com/sells-group/leadgen-cli/internal/selection"
	"github.com/sells-group/leadgen-cli/pkg/leadsapi"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Extract, enrich and rank leads",
	Long:  "Starts lead generation jobs on the API, waits for them, and downloads or previews their CSV results.",
}

// -- leads extract --

var leadsExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Search for businesses and extract their websites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		keyword, _ := cmd.Flags().GetString("keyword")
		location, _ := cmd.Flags().GetString("location")
		pages, _ := cmd.Flags().GetInt("pages")
		if keyword == "" || location == "" {
			return eris.New("both --keyword and --location are required")
		}

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.API.ExtractURLs(ctx, leadsapi.ExtractRequest{
			BusinessType: keyword,
			Location:     location,
			NumPages:     pages,
		})
		if err != nil {
			return errorBanner("Failed to start extraction", err)
		}
		zap.L().Info("extraction started", zap.String("job_id", started.JobID))

		job, err := watchJob(ctx, env.API.GetJob, started.JobID, "Extracting", poller.LeadPolicy)
		if err != nil {
			return pollFailure("Job", err)
		}
		formatJob(os.Stdout, job)
		return nil
	},
}

// -- leads enrich --

var leadsEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a result file with emails, phones and social profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.API.EnrichContacts(ctx, file)
		if err != nil {
			return errorBanner("Failed to start enrichment", err)
		}

		job, err := watchJob(ctx, env.API.GetJob, started.JobID, "Enriching", poller.EnrichPolicy)
		if err != nil {
			return pollFailure("Enrichment", err)
		}
		formatJob(os.Stdout, job)
		return nil
	},
}

// -- leads rank --

var leadsRankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a result file by PainScore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		top, _ := cmd.Flags().GetInt("top")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.API.RankSEO(ctx, file)
		if err != nil {
			return errorBanner("Failed to start ranking", err)
		}

		job, err := watchJob(ctx, env.API.GetJob, started.JobID, "Ranking", poller.RankPolicy)
		if err != nil {
			return pollFailure("Ranking", err)
		}
		formatJob(os.Stdout, job)

		if top <= 0 {
			return nil
		}
		body, err := env.API.Download(ctx, job.ID)
		if err != nil {
			return errorBanner("Failed to download results", err)
		}
		t, err := csvtable.Parse(bytes.NewReader(body))
		if err != nil {
			return err
		}
		leads, err := rank.Decode(t)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout)
		formatLeads(os.Stdout, rank.Top(leads, top))
		return nil
	},
}

// -- leads download --

var leadsDownloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download a completed job's CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		audit, _ := cmd.Flags().GetBool("audit")
		out, _ := cmd.Flags().GetString("out")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		download := env.API.Download
		if audit {
			download = env.API.DownloadAudit
		}
		body, err := download(ctx, args[0])
		if err != nil {
			return errorBanner("Download failed", err)
		}

		if out == "-" {
			_, err := os.Stdout.Write(body)
			return err
		}
		if out == "" {
			out = filepath.Join(cfg.Export.Dir, args[0]+".csv")
		}
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", out)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Saved %d bytes to %s\n", len(body), out)
		return nil
	},
}

// -- leads preview --

var leadsPreviewCmd = &cobra.Command{
	Use:   "preview <job-id>",
	Short: "Preview a completed job's CSV with filters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		audit, _ := cmd.Flags().GetBool("audit")
		search, _ := cmd.Flags().GetString("search")
		columns, _ := cmd.Flags().GetIntSlice("column")
		limit, _ := cmd.Flags().GetInt("limit")
		stats, _ := cmd.Flags().GetBool("stats")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		download := env.API.Download
		if audit {
			download = env.API.DownloadAudit
		}
		body, err := download(ctx, args[0])
		if err != nil {
			return errorBanner("Failed to fetch CSV preview", err)
		}
		t, err := csvtable.Parse(bytes.NewReader(body))
		if err != nil {
			return err
		}

		sel := selection.New()
		sel.Load(t)
		sel.SetFreeTextFilter(search)
		for _, c := range columns {
			sel.ToggleColumnFilter(c)
		}

		formatPreview(os.Stdout, sel, limit)
		if stats {
			_, _ = fmt.Fprintln(os.Stdout)
			formatStats(os.Stdout, sel.Stats(csvtable.DefaultCategories))
		}
		return nil
	},
}

// -- files list --

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect CSV files on the server",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List CSV files in the server's output directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.API.ListFiles(ctx)
		if err != nil {
			return errorBanner("Failed to list files", err)
		}
		if len(list.Files) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No files found.")
			return nil
		}
		formatFiles(os.Stdout, list.Files)
		return nil
	},
}

func init() {
	leadsExtractCmd.Flags().String("keyword", "", "business type to search for (e.g. plumber)")
	leadsExtractCmd.Flags().String("location", "", "city or region to search in")
	leadsExtractCmd.Flags().Int("pages", 1, "number of search result pages")

	leadsEnrichCmd.Flags().String("file", "", "server result file to enrich")
	_ = leadsEnrichCmd.MarkFlagRequired("file")

	leadsRankCmd.Flags().String("file", "", "server result file to rank")
	leadsRankCmd.Flags().Int("top", 10, "print the top N leads after ranking (0 to skip)")
	_ = leadsRankCmd.MarkFlagRequired("file")

	leadsDownloadCmd.Flags().Bool("audit", false, "the job is an audit job")
	leadsDownloadCmd.Flags().String("out", "", "output path, or - for stdout (default <export dir>/<job-id>.csv)")

	leadsPreviewCmd.Flags().Bool("audit", false, "the job is an audit job")
	leadsPreviewCmd.Flags().String("search", "", "case-insensitive substring filter over all cells")
	leadsPreviewCmd.Flags().IntSlice("column", nil, "only show rows with a value in these column indices")
	leadsPreviewCmd.Flags().Int("limit", 50, "max rows to print (0 for all)")
	leadsPreviewCmd.Flags().Bool("stats", true, "print contact category counts")

	leadsCmd.AddCommand(leadsExtractCmd)
	leadsCmd.AddCommand(leadsEnrichCmd)
	leadsCmd.AddCommand(leadsRankCmd)
	leadsCmd.AddCommand(leadsDownloadCmd)
	leadsCmd.AddCommand(leadsPreviewCmd)
	rootCmd.AddCommand(leadsCmd)

	filesCmd.AddCommand(filesListCmd)
	rootCmd.AddCommand(filesCmd)
}
