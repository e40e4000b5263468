package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shop-service/client"
)

var (
	// Global flags
	serverURL  string
	token      string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "shopctl",
	Short: "Command-line client for the shop API",
	Long: `shopctl drives the shop REST API: browse products, manage the cart,
apply promotions, check out and follow orders.

Sign in once with "shopctl login" and export the printed token:
  export SHOPCTL_TOKEN=$(shopctl login --email me@example.com --password ...)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SHOPCTL_SERVER", "http://localhost:8080"), "Base URL of the shop API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("SHOPCTL_TOKEN"), "Bearer token from shopctl login")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	if token == "" {
		return client.New(serverURL)
	}
	return client.New(serverURL, client.WithToken(token))
}

// render prints v as JSON with --json, and through table otherwise.
func render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}
