package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curewatch/internal/faults"
	"curewatch/internal/vibration"
)

func newVibrationCommand(ctx *commandContext) *cobra.Command {
	vibCmd := &cobra.Command{
		Use:   "vibration",
		Short: "Vibration anomaly detection",
	}
	vibCmd.AddCommand(newVibrationTrainCommand(ctx))
	vibCmd.AddCommand(newVibrationScoreCommand(ctx))
	return vibCmd
}

func newVibrationTrainCommand(ctx *commandContext) *cobra.Command {
	var target vibration.Target

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a vibration detector for an oven, recipe and axis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(target.Recipe) == "" {
				return faults.Wrap(faults.ErrValidation, "vibration", "train", "--recipe is required", nil)
			}

			trainer := &vibration.Trainer{Config: cfg, Logger: logger, Metrics: ctx.metrics}
			report, err := trainer.Train(cmd.Context(), target)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(report.Rates))
			for _, r := range report.Rates {
				rows = append(rows, []string{r.Run, formatFloat(r.Rate)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Detector %s trained on %s, bins %v\n", report.Name, report.TrainingRun, report.Bins)
			if report.Mean != nil && report.Std != nil {
				fmt.Fprintf(out, "Historical anomaly rate: mean %s std %s\n", formatFloat(*report.Mean), formatFloat(*report.Std))
			}
			fmt.Fprintln(out, renderTable([]column{{title: "Run"}, {title: "Anomaly rate", numeric: true}}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&target.Oven, "oven", "OA", "Autoclave (OA, OB, OC)")
	cmd.Flags().StringVar(&target.Recipe, "recipe", "", "Recipe to train")
	cmd.Flags().StringVar(&target.Axis, "axis", "X", "Vibration axis (X, Y, Z)")
	cmd.Flags().StringVar(&target.SensorType, "type", "fan", "Sensor type (fan, vacuum, water)")
	return cmd
}

func newVibrationScoreCommand(ctx *commandContext) *cobra.Command {
	var (
		req        vibration.ScoreRequest
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "score <run-id>",
		Short: "Score the vibration of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			req.RunID = args[0]

			scorer := &vibration.Scorer{Config: cfg, Logger: logger, Metrics: ctx.metrics}
			result, err := scorer.Score(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: anomaly rate %s, anomaly score %s\n",
				args[0], result.Name, formatFloat(result.Rate), formatFloat(result.Score))
			fmt.Fprintf(out, "wrote %s\n", result.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Axis, "axis", "X", "Vibration axis (X, Y, Z)")
	cmd.Flags().StringVar(&req.SensorType, "type", "fan", "Sensor type (fan, vacuum, water)")
	cmd.Flags().StringVar(&req.TargetDir, "target", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}
