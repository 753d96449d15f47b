package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"podscribe/internal/episode"
	"podscribe/internal/store"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every tracked episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.StateFilePath(), nil)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}

			entries := st.List()
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No episodes tracked yet")
				return nil
			}

			colorize := isatty.IsTerminal(os.Stdout.Fd())
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.EpisodeID,
					truncate(entry.Episode.Title, 40),
					stateCell(entry.Episode.State, colorize),
					formatWhen(entry.Episode.UpdatedAt),
					entry.Episode.NotePath,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"EPISODE", "TITLE", "STATE", "UPDATED", "NOTE"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))

			if !st.LastCheckTime().IsZero() {
				fmt.Fprintf(out, "Last discovery pass: %s\n", formatWhen(st.LastCheckTime()))
			}

			if showErrors {
				for _, entry := range entries {
					if entry.Episode.Error == "" {
						continue
					}
					fmt.Fprintf(out, "%s: %s\n", entry.EpisodeID, entry.Episode.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showErrors, "errors", false, "Print recorded error messages after the table")
	return cmd
}

func stateCell(state episode.State, colorize bool) string {
	label := string(state)
	if !colorize {
		return label
	}
	switch state {
	case episode.StateCompleted:
		return ansiGreen + label + ansiReset
	case episode.StateTranscriptionFailed:
		return ansiRed + label + ansiReset
	case episode.StateTranscribing:
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
