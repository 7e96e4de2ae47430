package cli

import (
	"fmt"

	"resumelift/internal/common"

	"github.com/spf13/cobra"
)

var apikeyFromVault bool
var apikeyStatusForce bool

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the AI provider API key stored on your account",
	Long: `The backend needs your AI provider API key to run optimizations.
The key is stored server-side on your account; these commands set,
inspect, and remove it.`,
}

var apikeySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store a provider API key on your account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAPIKeySet,
}

var apikeyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a provider API key is stored",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyStatus,
}

var apikeyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored provider API key",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyDelete,
}

func init() {
	apikeySetCmd.Flags().BoolVar(&apikeyFromVault, "from-vault", false,
		"Use the provider key configured in Vault instead of an argument")
	apikeyStatusCmd.Flags().BoolVar(&apikeyStatusForce, "refresh", false,
		"Bypass the status cache")

	apikeyCmd.AddCommand(apikeySetCmd)
	apikeyCmd.AddCommand(apikeyStatusCmd)
	apikeyCmd.AddCommand(apikeyDeleteCmd)
}

func runAPIKeySet(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())

	var key string
	switch {
	case apikeyFromVault:
		key = cfg.Credentials.ProviderKey
		if key == "" {
			return fmt.Errorf("no provider key available from Vault; check vault.secrets.providerKey")
		}
	case len(args) == 1:
		key = args[0]
	default:
		return fmt.Errorf("provide the key as an argument or use --from-vault")
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.SaveAPIKey(cmd.Context(), key); err != nil {
		return err
	}

	fmt.Println("Provider API key stored.")
	return nil
}

func runAPIKeyStatus(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	status, err := client.APIKeyStatus(cmd.Context(), apikeyStatusForce)
	if err != nil {
		return err
	}

	return common.NewOutputHandler(logger).HandleOutput(status,
		common.CommandConfig{OutputFormat: "text"})
}

func runAPIKeyDelete(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.DeleteAPIKey(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("Provider API key removed.")
	return nil
}
