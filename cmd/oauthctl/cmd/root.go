package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.pilab.hu/oauth/client"
	"go.pilab.hu/oauth/log"
	"go.pilab.hu/oauth/tokenstore"
)

var appLogger log.Logger

var (
	flagIssuer       string
	flagClientID     string
	flagClientSecret string
	flagScopes       []string
	flagTokenDir     string
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "oauthctl",
	Short: "oauthctl is a CLI tool to interact with an OAuth 2.1 authorization server",
	Long: `A command-line interface for obtaining and inspecting OAuth 2.1 tokens:
client credentials grants, device authorization flows, and server metadata discovery.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		appLogger = log.NewZerologAdapter(level, true)

		if flagIssuer == "" {
			return fmt.Errorf("--issuer is required (or set OAUTHCTL_ISSUER)")
		}
		if flagClientID == "" {
			return fmt.Errorf("--client-id is required (or set OAUTHCTL_CLIENT_ID)")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newOAuthClient builds a client from the persistent flags, backed by an
// on-disk token store so tokens survive between invocations.
func newOAuthClient() (*client.Client, error) {
	store, err := tokenstore.NewFileStore(flagTokenDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store at %s: %w", flagTokenDir, err)
	}
	return client.New(client.Config{
		Issuer:       flagIssuer,
		ClientID:     flagClientID,
		ClientSecret: flagClientSecret,
		Scopes:       flagScopes,
	}, client.WithTokenStore(store))
}

func defaultTokenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oauthctl"
	}
	return filepath.Join(home, ".oauthctl", "tokens")
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagIssuer, "issuer", os.Getenv("OAUTHCTL_ISSUER"), "Issuer URL of the authorization server")
	pf.StringVar(&flagClientID, "client-id", os.Getenv("OAUTHCTL_CLIENT_ID"), "OAuth client identifier")
	pf.StringVar(&flagClientSecret, "client-secret", os.Getenv("OAUTHCTL_CLIENT_SECRET"), "OAuth client secret (confidential clients only)")
	pf.StringSliceVar(&flagScopes, "scope", nil, "Scopes to request (repeatable)")
	pf.StringVar(&flagTokenDir, "token-dir", defaultTokenDir(), "Directory for cached tokens")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}
