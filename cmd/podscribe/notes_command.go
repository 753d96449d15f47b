package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"podscribe/internal/instance"
)

func newNotesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <episode-id>",
		Short: "Regenerate notes for an episode with a stored transcript",
		Args:  cobra.ExactArgs(1),
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

			if err := rt.orchestrator.GenerateNotes(signalCtx, args[0]); err != nil {
				return err
			}

			if ep, found := rt.store.Get(args[0]); found {
				fmt.Fprintf(cmd.OutOrStdout(), "Notes written to %s\n", ep.NotePath)
			}
			return nil
		},
	}
}
