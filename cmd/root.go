// Package cmd implements the centrallog command line.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/internal/client"
	"github.com/telhawk-systems/centrallog/internal/output"
)

const defaultServerURL = "http://localhost:8080"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "centrallog",
	Short: "Multi-tenant security log normalization and alert correlation",
	Long: `centrallog normalizes security events from many sources into one
record shape, stores them per tenant and raises alerts for failed-login
patterns.

Run "centrallog serve" to start the server; the other commands talk to a
running server over HTTP.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./centrallog.yaml or /etc/centrallog/centrallog.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", output.FormatTable, "output format: table, json, yaml")
	rootCmd.PersistentFlags().String("server", envOr("CENTRALLOG_SERVER", defaultServerURL), "server base URL")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printerFor(cmd *cobra.Command) (*output.Printer, error) {
	format, _ := cmd.Flags().GetString("output")
	p, err := output.New(format)
	if err != nil {
		return nil, err
	}
	p.Out = cmd.OutOrStdout()
	p.Err = cmd.ErrOrStderr()
	p.NoColor, _ = cmd.Flags().GetBool("no-color")
	return p, nil
}

func clientFor(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

// tenantFlag reads --tenant-id. Zero means every tenant.
func tenantFlag(cmd *cobra.Command) *int64 {
	id, _ := cmd.Flags().GetInt64("tenant-id")
	if id <= 0 {
		return nil
	}
	return &id
}

func formatTenant(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}
