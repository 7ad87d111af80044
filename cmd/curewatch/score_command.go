package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"curewatch/internal/device"
	"curewatch/internal/scoring"
)

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var (
		req        scoring.Request
		deviceName string
		heaterID   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "score <run-id>",
		Short: "Score one run against the stored current models",
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
			kind, err := device.Parse(deviceName, heaterID)
			if err != nil {
				return err
			}
			req.RunID = args[0]
			req.Device = kind

			svc := &scoring.Service{Config: cfg, Logger: logger, Metrics: ctx.metrics}
			result, err := svc.Score(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: %s\n", args[0], kind, result.Status)
			if result.Status == scoring.StatusScored {
				fmt.Fprintf(out, "model: %s/%s (%s)\n", result.Identity.ModelAutoclave, result.Identity.ModelRecipe, result.Match)
				fmt.Fprintf(out, "z score: %s\n", formatFloats(result.Identity.ZScore))
				fmt.Fprintf(out, "z threshold: %s\n", formatFloats(result.Identity.ModelZThr))
			}
			fmt.Fprintf(out, "wrote %s\n", result.CSVPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Output base name (defaults to the run id)")
	cmd.Flags().StringVar(&req.SourceDir, "source", "", "Run directory (defaults to <data_dir>/<run-id>)")
	cmd.Flags().StringVar(&req.TargetDir, "target", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().StringVar(&req.ModelDir, "model", "", "Model directory (overrides paths.model_dir)")
	cmd.Flags().StringVar(&req.DefaultModelDir, "default-model", "", "Fallback model directory (overrides paths.default_model_dir)")
	cmd.Flags().StringVar(&deviceName, "device", "fan", "Device to score (fan, heater, heater1, heater2)")
	cmd.Flags().IntVar(&heaterID, "heater", 0, "Heater bank when --device heater (0, 1 or 2)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}
