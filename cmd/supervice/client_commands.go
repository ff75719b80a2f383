package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rodmena-limited/supervice/internal/rpc"
)

func createStatusCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show process status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rpc.NewClient(global.SocketPath).Status()
			if err != nil {
				return err
			}
			if resp["status"] != "ok" {
				return fmt.Errorf("%v", resp["message"])
			}
			printStatusTable(resp)
			return nil
		},
	}
}

func createStartCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start NAME",
		Short: "Start a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSimple(rpc.NewClient(global.SocketPath).Start(args[0]))
		},
	}
}

func createStopCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSimple(rpc.NewClient(global.SocketPath).Stop(args[0]))
		},
	}
}

func createRestartCommand(global *GlobalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restart NAME",
		Short: "Restart a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSimple(rpc.NewClient(global.SocketPath).Restart(args[0], force))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "force restart with SIGKILL instead of graceful stop")
	return cmd
}

func createStartGroupCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "startgroup NAME",
		Short: "Start a process group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSimple(rpc.NewClient(global.SocketPath).StartGroup(args[0]))
		},
	}
}

func createStopGroupCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stopgroup NAME",
		Short: "Stop a process group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSimple(rpc.NewClient(global.SocketPath).StopGroup(args[0]))
		},
	}
}

func createReloadCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the configuration",
		Long: `Re-read the configuration file and reconcile the managed set:
new programs are added, missing ones removed, changed ones reported.
Changed programs keep running; restart them to apply the new definition.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rpc.NewClient(global.SocketPath).Reload()
			if err != nil {
				return err
			}
			if resp["status"] != "ok" {
				return fmt.Errorf("%v", resp["message"])
			}
			printReload(resp)
			return nil
		},
	}
}

// printSimple prints the message of an ok/error envelope and converts RPC
// errors into a non-zero exit.
func printSimple(resp map[string]any, err error) error {
	if err != nil {
		return err
	}
	if msg, ok := resp["message"].(string); ok && msg != "" {
		fmt.Println(msg)
	}
	if resp["status"] != "ok" {
		return fmt.Errorf("command failed")
	}
	return nil
}

func printStatusTable(resp map[string]any) {
	raw, _ := resp["processes"].([]any)
	procs := make([]map[string]any, 0, len(raw))
	hasHealth := false
	for _, r := range raw {
		p, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if p["health"] != nil {
			hasHealth = true
		}
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool {
		return fmt.Sprint(procs[i]["name"]) < fmt.Sprint(procs[j]["name"])
	})

	header := fmt.Sprintf("%-20s %-10s %-10s %-12s", "NAME", "STATE", "PID", "UPTIME")
	sepLen := 52
	if hasHealth {
		header += fmt.Sprintf(" %-10s", "HEALTH")
		sepLen += 10
	}
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", sepLen))

	for _, p := range procs {
		pid := "-"
		if v, ok := p["pid"].(float64); ok {
			pid = fmt.Sprintf("%d", int(v))
		}
		uptime := "-"
		if v, ok := p["uptime_seconds"].(float64); ok {
			uptime = formatUptime(int64(v))
		}
		line := fmt.Sprintf("%-20s %-10s %-10s %-12s", p["name"], p["state"], pid, uptime)
		if hasHealth {
			h := "-"
			if v, ok := p["health"].(string); ok {
				h = strings.ToUpper(v)
			}
			line += fmt.Sprintf(" %-10s", h)
		}
		fmt.Println(line)
	}
}

func printReload(resp map[string]any) {
	names := func(key string) []string {
		var out []string
		if list, ok := resp[key].([]any); ok {
			for _, v := range list {
				out = append(out, fmt.Sprint(v))
			}
		}
		return out
	}
	added, removed, changed := names("added"), names("removed"), names("changed")
	if len(added) > 0 {
		fmt.Printf("Added: %s\n", strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		fmt.Printf("Removed: %s\n", strings.Join(removed, ", "))
	}
	if len(changed) > 0 {
		fmt.Printf("Changed (restart to apply): %s\n", strings.Join(changed, ", "))
	}
	if len(added)+len(removed)+len(changed) == 0 {
		fmt.Println("No changes detected")
	}
}

func formatUptime(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
