package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"Agentrix-Chat/sdk/go/agentrix"
)

var version = "dev"

type rootOptions struct {
	server  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "agentrixctl",
		Short: "Talk to an Agentrix conversation server",
		Long: `agentrixctl is a terminal client for the Agentrix conversation API.

Quick Start:
  agentrixctl chat                         # start an interactive conversation
  agentrixctl submissions list --status failed
  agentrixctl submissions get <task-id>`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("AGENTRIX_SERVER", "http://localhost:8080"), "Agentrix API base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", agentrix.DefaultHTTPTimeout, "HTTP timeout per request")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newChatCmd(opts), newSubmissionsCmd(opts))
	return cmd
}

func (o *rootOptions) client() (*agentrix.Client, error) {
	return agentrix.NewClient(o.server, &http.Client{Timeout: o.timeout})
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
