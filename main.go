package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	defaults := defaultConfig()

	cmd := &cobra.Command{
		Use:           "update-server",
		Short:         "Serve a software update page and its download",
		Long:          "Serves a landing page on every path and streams a local file as an attachment on the download path.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a YAML or JSON config file")
	flags.Int("port", defaults.Port, "Port to listen on")
	flags.String("bind", defaults.Bind, "Address to bind, empty for all interfaces")
	flags.String("download-path", defaults.DownloadPath, "Request path that serves the file")
	flags.String("source", defaults.Source, "File to serve, relative to the working directory")
	flags.String("attachment-name", defaults.AttachmentName, "Filename advertised in Content-Disposition")
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("trust-forwarded-for", defaults.TrustForwardedFor, "Key download rate limits on X-Forwarded-For (only behind a trusted proxy)")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	return run(cmd.Context(), config)
}

func main() {
	log.SetHandler(text.New(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.WithError(err).Fatal("update server stopped")
	}
}
