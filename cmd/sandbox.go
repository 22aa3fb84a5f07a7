package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/sandbox"
)

var sandboxPort int

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Serve an in-memory lead generation API for offline use",
	Long: `Starts a local stand-in for the lead generation API. Jobs advance one step
per status request and results are generated from the request, so the
other commands can be tried without the real service.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if sandboxPort != 0 {
			cfg.Sandbox.Port = sandboxPort
		}
		if err := cfg.Validate("sandbox"); err != nil {
			return err
		}
		seeds, _ := cmd.Flags().GetStringSlice("seed")

		srv := sandbox.New(sandbox.Config{
			Secret:       []byte(cfg.Sandbox.Secret),
			ExtractSteps: cfg.Sandbox.ExtractSteps,
			RowsPerPage:  cfg.Sandbox.RowsPerPage,
		})
		for _, path := range seeds {
			body, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read seed %s", path)
			}
			srv.PutFile(filepath.Base(path), body)
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Sandbox.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down sandbox")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting sandbox",
			zap.Int("port", cfg.Sandbox.Port),
			zap.Int("seeded_files", len(seeds)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "sandbox listen")
		}
		return nil
	},
}

func init() {
	sandboxCmd.Flags().IntVar(&sandboxPort, "port", 0, "server port (default from config)")
	sandboxCmd.Flags().StringSlice("seed", nil, "CSV files to place in the output directory at start")
	rootCmd.AddCommand(sandboxCmd)
}
