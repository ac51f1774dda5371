package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeanpaulrichter/phasorviz/control"
	"github.com/jeanpaulrichter/phasorviz/menu"
)

const controlTimeout = 5 * time.Second

var openCmd = &cobra.Command{
	Use:   "open <handoff-url>",
	Short: "Hand a shared drawing to the running editor",
	Long: `Hands a reference such as https://phasorviz.de/s/ABC123 to the running
editor. Once the content is ready the editor asks before replacing the current
drawing, so this waits for the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := forward(cmd.Context(), control.SocketPath(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), outcome)
		return nil
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu <action>",
	Short: "Activate a toolbar entry in the running editor",
	Long: fmt.Sprintf(`Activates a toolbar entry in the running editor, as if it was clicked.

Actions: %s`, strings.Join(menu.Names(), ", ")),
	Args:      cobra.ExactArgs(1),
	ValidArgs: menu.Names(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := menu.ParseAction(args[0]); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
		defer cancel()
		return control.NewClient(control.SocketPath()).MenuAction(ctx, args[0])
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <file.json>",
	Short: "Load a saved drawing into the running editor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
		defer cancel()
		return control.NewClient(control.SocketPath()).Load(ctx, path, fi.Size())
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check whether an editor is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
		defer cancel()
		if err := control.NewClient(control.SocketPath()).Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "running")
		return nil
	},
}
