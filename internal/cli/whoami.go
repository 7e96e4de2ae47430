package cli

import (
	"resumelift/internal/common"

	"github.com/spf13/cobra"
)

var whoamiConfig common.CommandConfig
var whoamiForce bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user's profile",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if whoamiConfig.OutputFormat == "" {
			whoamiConfig.OutputFormat = "text"
		}
		return common.ValidateOutputFormat(whoamiConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runWhoami,
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiConfig.OutputFormat, "format", "", "Output format: json or text")
	whoamiCmd.Flags().BoolVar(&whoamiForce, "refresh", false, "Bypass the profile cache")
}

func runWhoami(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	user, err := client.CurrentUser(cmd.Context(), whoamiForce)
	if err != nil {
		return err
	}

	return common.NewOutputHandler(logger).HandleOutput(user, whoamiConfig)
}
