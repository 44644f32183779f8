// Command skydesk runs the agent delegation service. "serve" starts the HTTP
// API, "validate" checks the configuration and agent definitions without
// starting anything.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skydesk-ai/skydesk"
	"github.com/skydesk-ai/skydesk/agent"
	"github.com/skydesk-ai/skydesk/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "skydesk",
		Short:         "Agent delegation runtime for customer support",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "skydesk.yml", "Path to the configuration file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newValidateCmd(&configPath),
	)
	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			app, err := skydesk.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides the config file")
	return cmd
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and agent definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			defs, err := agent.LoadDir(cfg.Agents.Dir)
			if err != nil {
				return err
			}

			// Building the full app exercises every validation path: tool
			// references, trigger types and the single-router rule.
			app, err := skydesk.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration ok: %d agents, router %q\n", len(defs), app.Agents().Router())
			for _, def := range app.Agents().List() {
				fmt.Fprintf(out, "  %-20s %s\n", def.Name, def.Trigger.Type)
			}
			return nil
		},
	}
}
