package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.pilab.hu/oauth/client"
)

var devicePollTimeout time.Duration

var deviceLoginCmd = &cobra.Command{
	Use:   "device-login",
	Short: "Log in on this device using the device authorization grant",
	Long: `Requests a device code from the authorization server, prints the user code
and verification URI, then polls the token endpoint until the user approves
or denies the request in their browser.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newOAuthClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		auth, err := c.RequestDeviceAuthorization(ctx, flagScopes...)
		if err != nil {
			return fmt.Errorf("device authorization request failed: %w", err)
		}

		fmt.Printf("Visit %s and enter the code: %s\n", auth.VerificationURI, auth.UserCode)
		if auth.VerificationURIComplete != "" {
			fmt.Printf("Or open directly: %s\n", auth.VerificationURIComplete)
		}
		fmt.Println("Waiting for approval...")

		appLogger.Debug(ctx, "polling for device token", map[string]interface{}{
			"interval": auth.Interval,
			"timeout":  devicePollTimeout.String(),
		})
		tokens, err := c.PollDeviceToken(ctx, auth, client.PollOptions{Timeout: devicePollTimeout})
		if err != nil {
			return fmt.Errorf("device login failed: %w", err)
		}

		fmt.Println("Device login successful.")
		printTokens(tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt, tokens.Scopes)
		return nil
	},
}

func init() {
	deviceLoginCmd.Flags().DurationVar(&devicePollTimeout, "timeout", client.DefaultPollTimeout,
		"How long to poll before giving up")
	rootCmd.AddCommand(deviceLoginCmd)
}
