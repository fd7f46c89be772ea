package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/jobs"
	"levelup/internal/server"
	"levelup/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission API and job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspace)
		if err != nil {
			return err
		}
		tools, err := config.LoadTools(cfg.Workspace)
		if err != nil {
			return err
		}

		driver, err := compiler.New(cfg.Compiler, tools, cfg.Workspace)
		if err != nil {
			return fmt.Errorf("compiler setup failed: %w", err)
		}

		st, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("result store setup failed: %w", err)
		}
		defer st.Close()

		repos := config.NewRepoRegistry(cfg.Workspace)
		exec := jobs.New(cfg, tools, driver, repos, st)
		exec.Start()
		defer exec.Stop()

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: server.New(exec, repos, logger).Handler(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.Listen), zap.String("compiler", driver.ID()))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}
