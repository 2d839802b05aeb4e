package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"swipify/pkg/config"
	"swipify/pkg/logger"
	"swipify/pkg/token"
)

var (
	configPath string
	cachePath  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "swipify",
	Short: "Swipify command line client",
	Long: `swipify signs you in to Spotify (or a MusicShare OpenID provider) and
keeps an access token ready for scripts and local development.

Just run:
  swipify login

Your browser will open, you'll authenticate, and the token is cached locally.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a swipify YAML config file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", token.DefaultCachePath(), "token cache file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func cliLogger() zerolog.Logger {
	return logger.New(logLevel, true, os.Stderr)
}

func storage() *token.Storage {
	return token.NewStorage(cachePath)
}
