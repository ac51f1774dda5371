package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/control"
)

var (
	serveNoOpen bool
	serveStdio  bool
)

var runCmd = &cobra.Command{
	Use:   "run [handoff-url]",
	Short: "Open the editor, optionally with a shared drawing",
	Long: `Opens the editor on the configured platform. A hand-off reference such as
https://phasorviz.de/s/ABC123 makes the editor download that drawing once the
content is ready.

If an editor is already running, the reference is handed to it instead and
this process exits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd, args, runOptions{})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [handoff-url]",
	Short: "Serve the editor to the system browser",
	Long: `Serves content.dir over HTTP with the host bridge on a websocket and opens
the system browser on it. The toolbar runs inside the page; confirmations and
file selection happen on this terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd, args, runOptions{
			platform:    config.PlatformBrowser,
			openBrowser: !serveNoOpen,
			stdio:       serveStdio,
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoOpen, "no-open", false, "only print the URL")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "also answer JSON-RPC capability calls on stdin/stdout")
}

func runHost(cmd *cobra.Command, args []string, opts runOptions) error {
	var handoff string
	if len(args) > 0 {
		handoff = args[0]
	}
	if cfg.Platform == config.PlatformBrowser && opts.platform == "" {
		opts.openBrowser = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, handoff, opts)
	if err != nil {
		return err
	}

	sockPath := control.SocketPath()
	ctrl, err := control.Listen(sockPath, a.surface, logger.Named("control"))
	if errors.Is(err, control.ErrAlreadyRunning) {
		outcome, ferr := forward(ctx, sockPath, handoff)
		if ferr != nil {
			return ferr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "phasorviz is already running: %s\n", outcome)
		return nil
	}
	if err != nil {
		return err
	}

	url, err := a.listen()
	if err != nil {
		ctrl.Close()
		return err
	}

	logger.Info("starting",
		zap.String("platform", string(cfg.Platform)),
		zap.String("socket", ctrl.Path()),
		zap.String("url", url))
	return a.run(ctx, url, ctrl, opts)
}
