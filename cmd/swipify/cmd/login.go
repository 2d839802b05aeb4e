package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"swipify/pkg/browser"
	"swipify/pkg/oauth"
)

var (
	loginPort   int
	skipBrowser bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the music provider",
	Long: `Authenticate with the configured provider using the authorization code
flow with PKCE. A local callback server receives the redirect, so the
provider registration must allow http://127.0.0.1:<port>/callback.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().IntVar(&loginPort, "port", 8085, "local port for the OAuth callback")
	loginCmd.Flags().BoolVar(&skipBrowser, "no-browser", false, "print the login URL instead of opening a browser")
}

func runLogin(cmd *cobra.Command, args []string) error {
	log := cliLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	oc := cfg.Provider.OAuth()
	oc.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", loginPort)
	provider, err := oauth.NewProvider(ctx, cfg.Provider.Kind, oc)
	if err != nil {
		return fmt.Errorf("failed to set up provider: %w", err)
	}

	login, err := provider.StartLoopbackLogin(ctx, loginPort)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔐 Opening browser for authentication...\n\n")
	if skipBrowser {
		fmt.Fprintf(out, "Please visit this URL:\n%s\n\n", login.AuthURL)
	} else if err := browser.Open(login.AuthURL); err != nil {
		log.Warn().Err(err).Msg("could not open browser")
		fmt.Fprintf(out, "Please visit this URL manually:\n%s\n\n", login.AuthURL)
	} else {
		fmt.Fprintf(out, "If browser doesn't open, visit:\n%s\n\n", login.AuthURL)
	}

	fmt.Fprintf(out, "⏳ Waiting for authentication to complete...\n")
	tok, err := login.Wait(ctx)
	if err != nil {
		return err
	}

	profile, err := provider.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("could not load profile")
	}

	store := storage()
	if err := store.Save(tok, profile); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n✅ Authentication successful!\n")
	if profile != nil {
		fmt.Fprintf(out, "✅ Logged in as %s\n", displayName(profile.DisplayName, profile.ExternalID))
	}
	fmt.Fprintf(out, "✅ Token cached at: %s\n", store.Path())
	if tok.RefreshToken == "" {
		fmt.Fprintf(out, "⚠️  No refresh token issued; run swipify login again when it expires\n")
	}
	return nil
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// providerFromConfig builds the provider for commands that only refresh.
func providerFromConfig(ctx context.Context) (*oauth.Provider, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	oc := cfg.Provider.OAuth()
	if oc.RedirectURL == "" {
		oc.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", loginPort)
	}
	return oauth.NewProvider(ctx, cfg.Provider.Kind, oc)
}
