package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/internal/daemonrunner"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "run the memd daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		d, err := buildComponents(ctx, cfg, resolvedProjectDir, Version, logger)
		if err != nil {
			return runtimeErrf("building daemon: %v", err)
		}
		defer d.close(context.Background())

		if err := d.startServer(); err != nil {
			if errors.Is(err, daemonrunner.ErrAlreadyRunning) {
				return runtimeErrf("a memd daemon is already running for %s", resolvedProjectDir)
			}
			return runtimeErrf("acquiring daemon lock: %v", err)
		}

		serverErrCh := make(chan error, 1)
		go func() { serverErrCh <- d.server.Start(ctx) }()
		go d.sched.Run(ctx)

		select {
		case <-d.server.WaitReady():
			logger.Info("memd started", "project", resolvedProjectDir, "db", d.dbPath, "socket", d.varDir)
		case err := <-serverErrCh:
			return runtimeErrf("starting rpc server: %v", err)
		}

		<-ctx.Done()
		logger.Info("shutting down")
		if err := d.server.Stop(); err != nil {
			logger.Error("stop rpc server", "error", err)
		}
		return nil
	},
}
