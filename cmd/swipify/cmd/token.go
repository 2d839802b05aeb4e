package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swipify/pkg/oauth"
)

var tokenJSON bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token, refreshing it if needed",
	Long: `Print the cached access token. An expired token is refreshed with the
cached refresh token and the cache is updated. When the provider rejects
the refresh token, run swipify login again.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().BoolVar(&tokenJSON, "json", false, "print the token as JSON with its expiry")
}

type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Expiry      time.Time `json:"expiry"`
}

func runToken(cmd *cobra.Command, args []string) error {
	log := cliLogger()
	store := storage()

	cache, err := store.Load()
	if err != nil {
		return err
	}
	if cache == nil {
		return errors.New("not logged in - run: swipify login")
	}

	provider, err := providerFromConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to set up provider: %w", err)
	}

	tok, refreshed, err := provider.ValidToken(cmd.Context(), cache.TokenSet())
	if err != nil {
		if errors.Is(err, oauth.ErrGrantRejected) {
			return errors.New("refresh token rejected - run: swipify login")
		}
		return err
	}
	if refreshed {
		log.Debug().Time("expiry", tok.ExpiresAt).Msg("token refreshed")
		if err := store.Save(tok, nil); err != nil {
			log.Warn().Err(err).Msg("failed to update token cache")
		}
	}

	out := cmd.OutOrStdout()
	if !tokenJSON {
		fmt.Fprintln(out, tok.AccessToken)
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenOutput{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn(time.Now()),
		Expiry:      tok.ExpiresAt,
	})
}
