package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejzeis/strangerchat/client"
	"github.com/alejzeis/strangerchat/common"
	"github.com/alejzeis/strangerchat/server"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	debug          bool
	configLocation string
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          common.SoftwareName,
		Short:        "Anonymous one-on-one chat matchmaking and WebRTC signaling",
		Version:      common.SoftwareVersion,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(serverCmd(), clientCmd())
	return root
}

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the matchmaking and signaling server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.WithFields(log.Fields{
				"software": common.SoftwareName,
				"version":  common.SoftwareVersion,
				"mode":     "server",
			}).Info("Starting...")

			config, err := server.LoadConfig(resolveConfigLocation())
			if err != nil {
				log.WithField("config", resolveConfigLocation()).WithError(err).Error("Failed to load configuration file.")
				return err
			}

			log.SetLevel(config.LogLevel)
			if debug {
				log.SetLevel(log.DebugLevel)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.NewServer(config).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&configLocation, "config", "", "path to the INI configuration file (default $SERVER_CONFIG or "+server.DefaultConfigLocation+")")
	return cmd
}

func clientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client [URL]",
		Short: "Chat with strangers from the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}

			log.WithFields(log.Fields{
				"software": common.SoftwareName,
				"version":  common.SoftwareVersion,
				"mode":     "client",
			}).Debug("Starting...")

			var serverURL string
			if len(args) == 1 {
				serverURL = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return client.RunClient(ctx, os.Stdin, serverURL)
		},
	}
}

// resolveConfigLocation picks --config, then SERVER_CONFIG, then the default
func resolveConfigLocation() string {
	if configLocation != "" {
		return configLocation
	}
	if env := os.Getenv("SERVER_CONFIG"); env != "" {
		return env
	}
	return server.DefaultConfigLocation
}
