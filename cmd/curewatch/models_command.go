package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"curewatch/internal/modelstore"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect stored models",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var (
		modelDir   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored current models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Paths.ModelDir
			if d := strings.TrimSpace(modelDir); d != "" {
				dir = d
			}
			store, ok, err := modelstore.OpenExisting(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "No model store in %s\n", dir)
				return nil
			}
			defer store.Close()

			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No models stored")
				return nil
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.Device,
					s.Autoclave,
					s.GroupKey,
					s.Recipe,
					formatFloat(s.R2),
					strconv.Itoa(s.TrainingRows),
					s.TrainedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{title: "Device"},
				{title: "Autoclave"},
				{title: "Group"},
				{title: "Recipe"},
				{title: "R²", numeric: true},
				{title: "Rows", numeric: true},
				{title: "Trained"},
			}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelDir, "model", "", "Model directory (overrides paths.model_dir)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the listing as JSON")
	return cmd
}
