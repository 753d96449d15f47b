package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"podscribe/internal/instance"
)

func newOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single discovery pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			guard, err := instance.Acquire(cfg.LockFilePath())
			if err != nil {
				return err
			}
			defer guard.Release()

			rt, err := buildRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			completed, err := rt.orchestrator.DiscoverAndProcess(signalCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pass finished: %d episode(s) completed\n", completed)
			return nil
		},
	}
}
