package cli

import (
	"context"
	"fmt"
	"os"

	"resumelift/internal/common"
	"resumelift/internal/errors"
	"resumelift/internal/types"

	"github.com/spf13/cobra"
)

var optimizeConfig common.CommandConfig
var optimizeStream bool

var optimizeCmd = &cobra.Command{
	Use:   "optimize [resume-file] [job-description-file]",
	Short: "Optimize a resume for a specific job description",
	Long: `Run an optimization against the backend. The command takes two
arguments: the path to your resume file and the path to the job
description file. Both files should be in plain text format.

With --stream, progress events are printed as the backend works
through analysis, planning, and scoring iterations.`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if optimizeConfig.OutputFormat == "" {
			optimizeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		// Validate format against supported formats
		return common.ValidateOutputFormat(optimizeConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	optimizeCmd.Flags().StringVar(&optimizeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	optimizeCmd.Flags().BoolVar(&optimizeStream, "stream", false, "Stream progress events while the optimization runs")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	createInput := func(contents []string) (types.OptimizeRequest, error) {
		if len(contents) != 2 {
			return types.OptimizeRequest{}, fmt.Errorf("expected 2 file paths, got %d", len(contents))
		}
		return types.OptimizeRequest{
			Resume:         contents[0],
			JobDescription: contents[1],
		}, nil
	}

	logDetails := func(input types.OptimizeRequest, cfg common.CommandConfig) {
		logger.Info("Starting resume optimization",
			"resume_chars", len(input.Resume),
			"job_chars", len(input.JobDescription),
			"stream", optimizeStream,
			"output_format", cfg.OutputFormat)
	}

	operation := func(ctx context.Context, input types.OptimizeRequest) (types.OptimizationResult, error) {
		if !optimizeStream {
			return client.Optimize(ctx, input)
		}
		return client.OptimizeStream(ctx, input, func(ev types.StreamEvent) {
			printStreamEvent(ev)
		})
	}

	err = common.RunClientCommand(
		cmd.Context(),
		logger,
		optimizeConfig,
		args,
		createInput,
		operation,
		logDetails,
	)

	if err != nil {
		if hint := remediationHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return fmt.Errorf("failed to optimize resume: %w", err)
	}
	logger.Info("Resume optimization completed successfully")
	return nil
}

// remediationHint maps error codes the user can act on to a next step.
func remediationHint(err error) string {
	switch {
	case errors.HasCode(err, errors.ErrCodeMissingAPIKey):
		return "No provider API key is stored on your account. Run 'resumelift apikey set <key>' and retry."
	case errors.HasCode(err, errors.ErrCodeNotLoggedIn):
		return "Run 'resumelift login <email>' first."
	default:
		return ""
	}
}

// printStreamEvent renders one progress event to stderr, keeping
// stdout clean for the final formatted result.
func printStreamEvent(ev types.StreamEvent) {
	switch ev.Event {
	case "completed":
		fmt.Fprintln(os.Stderr, "✔ completed")
	case "error":
		// The error surfaces through the returned error; nothing to print.
	default:
		line := "• " + ev.Event
		if step, ok := ev.Data["step"]; ok {
			line = fmt.Sprintf("%s (step %v)", line, step)
		}
		if msg, ok := ev.Data["message"].(string); ok && msg != "" {
			line += ": " + msg
		}
		fmt.Fprintln(os.Stderr, line)
	}
}
