package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curewatch/internal/device"
	"curewatch/internal/modelstore"
	"curewatch/internal/training"
)

type trainingJSON struct {
	TrainingID string               `json:"training_id"`
	TrainRuns  []string             `json:"train_runs"`
	TestRuns   []string             `json:"test_runs"`
	Models     []modelstore.Summary `json:"models"`
}

func trainingView(report *training.Report) trainingJSON {
	view := trainingJSON{TrainingID: report.TrainingID, TrainRuns: report.TrainRuns, TestRuns: report.TestRuns}
	for _, e := range report.Entries {
		view.Models = append(view.Models, e.Summary())
	}
	return view
}

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var (
		deviceName string
		heaterID   int
		oven       string
		recipe     string
		dataDir    string
		modelDir   string
		start      string
		end        string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train current models for one device",
		Long: `Train Gaussian-process current models for a device.

With --recipe the recipe model and the autoclave's pooled model are trained;
without it only the pooled model is trained on the earliest runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			kind, err := device.Parse(deviceName, heaterID)
			if err != nil {
				return err
			}
			if dir := strings.TrimSpace(dataDir); dir != "" {
				cfg.Paths.DataDir = dir
			}
			if dir := strings.TrimSpace(modelDir); dir != "" {
				cfg.Paths.ModelDir = dir
			}

			pipeline := &training.Pipeline{Config: cfg, Logger: logger, Metrics: ctx.metrics}
			report, err := pipeline.Run(cmd.Context(), training.Options{
				Device:    kind,
				Autoclave: strings.ToUpper(strings.TrimSpace(oven)),
				Recipe:    strings.TrimSpace(recipe),
				Start:     start,
				End:       end,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, trainingView(report))
			}

			rows := make([][]string, 0, len(report.Entries))
			for _, e := range report.Entries {
				rows = append(rows, []string{
					e.Autoclave,
					e.GroupKey,
					formatFloat(e.Metrics.R2),
					strconv.Itoa(e.TrainingRows),
					formatFloats(e.Threshold),
					e.Kernel.String(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Training %s: %d train runs, %d held out\n", report.TrainingID, len(report.TrainRuns), len(report.TestRuns))
			fmt.Fprintln(out, renderTable([]column{
				{title: "Autoclave"},
				{title: "Group"},
				{title: "R²", numeric: true},
				{title: "Rows", numeric: true},
				{title: "z threshold", numeric: true},
				{title: "Kernel"},
			}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceName, "device", "fan", "Device to model (fan, heater, heater1, heater2)")
	cmd.Flags().IntVar(&heaterID, "heater", 0, "Heater bank when --device heater (0, 1 or 2)")
	cmd.Flags().StringVar(&oven, "oven", "", "Restrict training to one autoclave (e.g. OA)")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Recipe to train; empty trains only the pooled model")
	cmd.Flags().StringVar(&dataDir, "data", "", "Training data directory (overrides paths.data_dir)")
	cmd.Flags().StringVar(&modelDir, "model", "", "Model directory (overrides paths.model_dir)")
	cmd.Flags().StringVar(&start, "start", "", "First run date to include (YYYYMMDD)")
	cmd.Flags().StringVar(&end, "end", "", "Last run date to include (YYYYMMDD)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the training report as JSON")
	return cmd
}
