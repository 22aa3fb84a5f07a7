package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/poller"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Follow server jobs",
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>...",
	Short: "Poll one or more jobs until each completes or fails",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		audit, _ := cmd.Flags().GetBool("audit")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		env, err := initClient(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, policy, interval := env.API.GetJob, poller.LeadPolicy, cfg.Poll.LeadInterval
		if audit {
			status, policy, interval = env.API.GetAuditJob, poller.AuditPolicy, cfg.Poll.AuditInterval
		}

		jobs, failed := watchJobs(ctx, status, args, policy, interval, concurrency)
		formatJobs(os.Stdout, jobs)
		if failed > 0 {
			return eris.Errorf("%d of %d jobs failed", failed, len(args))
		}
		return nil
	},
}

// watchJobs polls every id concurrently with independent pollers and
// returns the terminal job for each id, in argument order, plus the number
// that did not complete. A job whose status check errored is reported with
// the poller's synthetic failed job.
func watchJobs(ctx context.Context, status poller.StatusFunc, ids []string, policy poller.ProgressPolicy, interval time.Duration, concurrency int) ([]*model.Job, int64) {
	if concurrency <= 0 {
		concurrency = len(ids)
	}

	results := make([]*model.Job, len(ids))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		g.Go(func() error {
			log := zap.L().With(zap.String("job_id", id))

			p := poller.New(status, poller.WithPolicy(policy), poller.WithInterval(interval))
			job, err := p.Run(gctx, id)
			if job == nil {
				job = &model.Job{ID: id, Status: model.JobStatusFailed, Error: model.StringPtr(fmt.Sprint(err))}
			}
			results[i] = job

			if err != nil {
				failed.Add(1)
				log.Warn("job did not complete", zap.Error(err))
				return nil // keep watching the others
			}
			log.Info("job completed", zap.String("result_file", job.ResultFileName()))
			return nil
		})
	}
	_ = g.Wait()

	return results, failed.Load()
}

func init() {
	jobsWatchCmd.Flags().Bool("audit", false, "the jobs are audit jobs")
	jobsWatchCmd.Flags().Int("concurrency", 0, "max jobs polled at once (0 for all)")

	jobsCmd.AddCommand(jobsWatchCmd)
	rootCmd.AddCommand(jobsCmd)
}
