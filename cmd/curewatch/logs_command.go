package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"curewatch/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		runID     string
		component string
		level     string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent curewatch log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := logs.Filter{RunID: strings.TrimSpace(runID), Component: strings.TrimSpace(component)}
			if lvl := strings.TrimSpace(level); lvl != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(lvl)); err != nil {
					return fmt.Errorf("invalid --level %q: %w", level, err)
				}
				filter.HasLevel = true
			}

			path := filepath.Join(cfg.Paths.LogDir, "curewatch.log")
			recent, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, filter, 0, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&runID, "run", "", "Only lines for this run id")
	cmd.Flags().StringVar(&component, "component", "", "Only lines from this component (training, scoring, vibration, ...)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
