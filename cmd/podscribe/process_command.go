package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"podscribe/internal/instance"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "process <episode-url>",
		Short: "Process a single episode reference end to end",
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

			if !rt.orchestrator.ProcessEpisode(signalCtx, "", args[0], title) {
				return fmt.Errorf("episode processing failed; see log for details")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Episode completed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Override the episode title in the generated note")
	return cmd
}
