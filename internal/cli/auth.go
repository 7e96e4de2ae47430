package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var authPassword string

var registerCmd = &cobra.Command{
	Use:   "register [email]",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Log in and store the session token",
	Long: `Log in to the optimization backend. The returned token is stored in
your user config directory so subsequent commands share the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	registerCmd.Flags().StringVar(&authPassword, "password", "", "Password (prompted when omitted)")
	loginCmd.Flags().StringVar(&authPassword, "password", "", "Password (prompted when omitted)")
}

// resolvePassword uses the flag value or prompts on stdin.
func resolvePassword() (string, error) {
	if authPassword != "" {
		return authPassword, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	user, err := client.Register(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}

	logger.Info("Account created", "email", user.Email)
	fmt.Printf("Account created for %s. Run 'resumelift login %s' to sign in.\n", user.Email, user.Email)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.Login(cmd.Context(), args[0], password); err != nil {
		return err
	}

	logger.Info("Logged in", "email", args[0])
	fmt.Printf("Logged in as %s.\n", args[0])
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := client.Logout(); err != nil {
		return err
	}

	fmt.Println("Logged out.")
	return nil
}
