package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-chip-donations/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the cached CHIP public key",
}

var keysRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the CHIP public key for the configured credentials and store it",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"keys_refresh",
			func(*config.Config) time.Duration { return 0 },
			nil,
			func(app *application, ctx context.Context) error {
				return app.credentials.RefreshPublicKey(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysRefreshCmd)
}
