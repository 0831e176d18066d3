package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xhad/courseqa/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question API over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, vs, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer vs.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(pipeline, vs, server.Config{
		Addr:             addr,
		MaxQuestionChars: cfg.Server.MaxQuestionChars,
		MaxImageChars:    cfg.Server.MaxImageChars,
		MaxConnQueries:   cfg.Server.MaxConnQueries,
	}, log.With("component", "server"))
	return srv.ListenAndServe(ctx)
}
