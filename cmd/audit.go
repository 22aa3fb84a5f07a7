package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/poller"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Validate, upload and audit lead CSVs",
}

// -- audit validate --

var auditValidateCmd = &cobra.Command{
	Use:   "validate <csv>",
	Short: "Check that a CSV has business name and website columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		v, err := csvtable.ValidateFile(args[0], loadSynonyms())
		if err != nil {
			var headerErr *csvtable.HeaderError
			if errors.As(err, &headerErr) {
				return eris.Errorf("Validation failed: %s", headerErr.Error())
			}
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, v.Message())
		_, _ = fmt.Fprintf(os.Stdout, "Business name column: %s\nWebsite column: %s\n", v.BusinessNameColumn, v.WebsiteColumn)
		return nil
	},
}

// -- audit upload --

var auditUploadCmd = &cobra.Command{
	Use:   "upload <csv>",
	Short: "Upload a CSV for auditing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		skipValidate, _ := cmd.Flags().GetBool("skip-validate")

		if !skipValidate {
			if _, err := csvtable.ValidateFile(args[0], loadSynonyms()); err != nil {
				return eris.Errorf("Validation failed: %s", err.Error())
			}
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		up, err := env.API.UploadAuditFile(ctx, filepath.Base(args[0]), f)
		if err != nil {
			return errorBanner("Upload failed", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s: %s\n", up.Message, up.Filename)
		return nil
	},
}

// -- audit run --

var auditRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the SEO audit over an uploaded file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.API.RunAudit(ctx, file, limit)
		if err != nil {
			return errorBanner("Failed to start audit", err)
		}

		job, err := watchJob(ctx, env.API.GetAuditJob, started.JobID, "Auditing", poller.AuditPolicy)
		if err != nil {
			return pollFailure("Audit", err)
		}
		formatJob(os.Stdout, job)
		return nil
	},
}

func init() {
	auditUploadCmd.Flags().Bool("skip-validate", false, "upload without checking headers locally")

	auditRunCmd.Flags().String("file", "", "uploaded file name returned by audit upload")
	auditRunCmd.Flags().Int("limit", 10, "max rows to audit (0 for all)")
	_ = auditRunCmd.MarkFlagRequired("file")

	auditCmd.AddCommand(auditValidateCmd)
	auditCmd.AddCommand(auditUploadCmd)
	auditCmd.AddCommand(auditRunCmd)
	rootCmd.AddCommand(auditCmd)
}
