package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	SocketPath string
}

// buildRoot assembles the command tree: the daemon (serve) plus the control
// client commands that speak the framed RPC over the local socket.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}

	root := &cobra.Command{
		Use:   "supervice",
		Short: "A modern process supervisor",
		Long: `Supervice is a process supervisor for Unix-like systems: it spawns,
monitors, restarts, and gracefully stops a configured set of child
processes, with health probes and runtime reconfiguration.

Examples:
  supervice serve -c supervice.conf       # Run the daemon in the foreground
  supervice serve -c supervice.conf -d    # Daemonize
  supervice status                        # Show process status
  supervice restart web --force           # SIGKILL restart`,
	}
	root.PersistentFlags().StringVarP(&globalFlags.SocketPath, "socket", "s",
		"/tmp/supervice.sock", "path to the control socket")

	root.AddCommand(
		createServeCommand(serveFlags),
		createStatusCommand(globalFlags),
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createRestartCommand(globalFlags),
		createStartGroupCommand(globalFlags),
		createStopGroupCommand(globalFlags),
		createReloadCommand(globalFlags),
	)
	return root
}
