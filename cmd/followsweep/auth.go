package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"followsweep/pkg/auth"
	"followsweep/pkg/browser"
	"followsweep/pkg/ui"
)

var (
	logoutAll   bool
	statusCheck bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage session cookies",
	Long: `Manage the session cookies followsweep signs the browser in with.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FOLLOWSWEEP_AUTH_TOKEN, FOLLOWSWEEP_CSRF_TOKEN)

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store session cookies securely",
	Long: `Store the auth_token and ct0 cookies of a logged-in browser session.

You will be prompted for:
  - Username (if not provided)
  - auth_token cookie value
  - ct0 cookie value
  - User Agent (optional, press Enter for default)`,
	Example: `  followsweep auth login
  followsweep auth login myaccount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which account collections will use",
	Long: `Show the account followsweep would sign in with. With --check the browser
is started and asked which account is actually logged in.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, statusCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "verify the login in the browser")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowCookieExtractionGuide(ui.Out)

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Fprint(ui.Out, "Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Fprintf(ui.Out, "\nAccount '%s' already exists. Update credentials? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Fprintln(ui.Out, "\nEnter your cookie values (they will be hidden as you type):")

	fmt.Fprint(ui.Out, "auth_token cookie value: ")
	authToken, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read auth_token: %w", err)
	}
	if len(authToken) < 20 {
		return fmt.Errorf("that does not look like an auth_token: it is a 40 character hex string")
	}

	fmt.Fprint(ui.Out, "ct0 cookie value: ")
	csrfToken, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read ct0: %w", err)
	}
	if len(csrfToken) < 20 {
		return fmt.Errorf("that does not look like a ct0 token")
	}

	fmt.Fprint(ui.Out, "User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Username:     username,
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    strings.TrimSpace(userAgent),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess("Account saved: " + account.Username)
	fmt.Fprintln(ui.Out, "\nCollect your followers with:")
	fmt.Fprintln(ui.Out, "  $ followsweep collect")
	fmt.Fprintf(ui.Out, "  $ followsweep collect --account %s\n", account.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		if !confirm("Remove ALL stored accounts? (y/N): ") {
			return nil
		}
		n, err := manager.DeleteAll()
		if err != nil {
			return fmt.Errorf("failed to remove all accounts: %w", err)
		}
		ui.PrintSuccess(fmt.Sprintf("Removed %d accounts", n))
		return nil
	}

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		account, err := manager.Default("")
		if err != nil {
			return fmt.Errorf("no stored accounts found")
		}
		username = account.Username
		if !confirm(fmt.Sprintf("Remove account '%s'? (y/N): ", username)) {
			return nil
		}
	}

	if err := manager.Delete(username); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'followsweep auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(ui.Out, "\n%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Fprintf(ui.Out, "   auth_token: %s\n", sanitized.AuthToken)
		fmt.Fprintf(ui.Out, "   ct0: %s\n", sanitized.CSRFToken)
		if sanitized.UserAgent != "" {
			fmt.Fprintf(ui.Out, "   User Agent: %s\n", sanitized.UserAgent)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(ui.Out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	account, err := loadAccount(accountName)
	if err != nil {
		ui.PrintWarning("No stored account; the browser profile's own login will be used")
		auth.ShowQuickExtractGuide(ui.Out)
	} else {
		ui.PrintInfo("Account", account.Username)
	}

	if !statusCheck {
		return nil
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	ctrl := browser.New(cfg.Browser, nil)
	defer ctrl.Close()
	if account != nil {
		ctrl.SetSession(account.AuthToken, account.CSRFToken)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Browser.NavigationTimeout+cfg.Browser.LoginTimeout)
	defer cancel()
	handle, err := ctrl.DetectAccount(ctx)
	if err != nil {
		ui.PrintError("Not logged in", err)
		return err
	}
	ui.PrintSuccess("Logged in as @" + handle)
	return nil
}

// readSecret reads a value without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.Out)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
