package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "cuemsctl",
		Short:         "Operator console for the CUEMS show-control engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return setupLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
			}
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			return setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.controlURL, "control-url", "", "Engine control websocket URL")
	pf.StringVar(&flags.realtimeURL, "realtime-url", "", "Engine realtime websocket URL")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "auto", "Log format (auto, text, json)")
	pf.DurationVar(&flags.timeout, "timeout", 10*time.Second, "How long to wait for engine replies")

	rootCmd.AddCommand(newTransportCommands(ctx)...)
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newVolumeCommand(ctx))
	rootCmd.AddCommand(newVideoCommand(ctx))
	rootCmd.AddCommand(newProjectsCommand(ctx))
	rootCmd.AddCommand(newProjectCommand(ctx))
	rootCmd.AddCommand(newCuesCommand(ctx))
	rootCmd.AddCommand(newOutputsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
