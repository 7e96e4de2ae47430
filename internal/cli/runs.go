package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"resumelift/internal/common"
	"resumelift/internal/types"

	"github.com/spf13/cobra"
)

var runsListConfig common.CommandConfig
var runsListLimit int
var runsListForce bool
var runsClearYes bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse and manage past optimization runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent optimization runs",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if runsListConfig.OutputFormat == "" {
			runsListConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(runsListConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one optimization run, including its stored result",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete one optimization run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the entire run history",
	Args:  cobra.NoArgs,
	RunE:  runRunsClear,
}

func init() {
	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "n", 0, "Maximum number of runs to list")
	runsListCmd.Flags().StringVar(&runsListConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	runsListCmd.Flags().BoolVar(&runsListForce, "refresh", false, "Bypass the run list cache")
	runsClearCmd.Flags().BoolVarP(&runsClearYes, "yes", "y", false, "Skip the confirmation prompt")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsClearCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	runs, err := client.Runs(cmd.Context(), runsListLimit, runsListForce)
	if err != nil {
		return err
	}

	return common.NewOutputHandler(logger).HandleOutput(runs, runsListConfig)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	run, err := client.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	// A finished run carries a stored result document; render that
	// instead of the bare run row when it parses.
	if len(run.ResultJSON) > 0 {
		var result types.OptimizationResult
		if err := json.Unmarshal(run.ResultJSON, &result); err == nil {
			return common.NewOutputHandler(logger).HandleOutput(result,
				common.CommandConfig{OutputFormat: "text"})
		}
	}

	return common.NewOutputHandler(logger).HandleOutput(run,
		common.CommandConfig{OutputFormat: "json"})
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.DeleteRun(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Run %s deleted.\n", args[0])
	return nil
}

func runRunsClear(cmd *cobra.Command, args []string) error {
	if !runsClearYes {
		fmt.Fprint(os.Stderr, "Delete ALL optimization runs? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	summary, err := client.ClearRunHistory(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d runs.\n", summary.Deleted)
	return nil
}
