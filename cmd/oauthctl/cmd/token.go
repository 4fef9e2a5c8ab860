package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Obtain an access token using the client credentials grant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagClientSecret == "" {
			return fmt.Errorf("the client credentials grant requires --client-secret")
		}

		c, err := newOAuthClient()
		if err != nil {
			return err
		}

		appLogger.Debug(cmd.Context(), "requesting client credentials token", map[string]interface{}{
			"issuer":    flagIssuer,
			"client_id": flagClientID,
			"scopes":    flagScopes,
		})
		tokens, err := c.ClientCredentials(cmd.Context(), flagScopes...)
		if err != nil {
			return fmt.Errorf("token request failed: %w", err)
		}

		printTokens(tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt, tokens.Scopes)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached token for this client, refreshing it if expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newOAuthClient()
		if err != nil {
			return err
		}

		tokens, err := c.Token(cmd.Context())
		if err != nil {
			return fmt.Errorf("no usable token: %w", err)
		}

		printTokens(tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt, tokens.Scopes)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove cached tokens for this client",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newOAuthClient()
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
		appLogger.Debug(cmd.Context(), "token store cleared", map[string]interface{}{"client_id": flagClientID})
		fmt.Println("Cached tokens cleared.")
		return nil
	},
}

func printTokens(access, refresh string, expiresAt time.Time, scopes []string) {
	fmt.Printf("Access token:  %s\n", access)
	if refresh != "" {
		fmt.Printf("Refresh token: %s\n", refresh)
	}
	if !expiresAt.IsZero() {
		fmt.Printf("Expires at:    %s (in %s)\n", expiresAt.Format(time.RFC3339), time.Until(expiresAt).Round(time.Second))
	}
	if len(scopes) > 0 {
		fmt.Printf("Scopes:        %v\n", scopes)
	}
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(showCmd)
	rootCmd.AddCommand(logoutCmd)
}
