// Package main implements the codeflow CLI (cflow).
// It renders function flowcharts and manages the optional daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/cmd/cflow/commands"
	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/l3aro/codeflow/internal/log"
)

var version = "dev"

func main() {
	startCmd := &cobra.Command{
		Use:   "start [flags]",
		Short: "Start daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			daemonPath, _ := cmd.Flags().GetString("daemon")
			socketPath, _ := cmd.Flags().GetString("socket")
			configPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")
			foreground, _ := cmd.Flags().GetBool("foreground")
			return runStart(daemonPath, resolveSocket(socketPath, configPath), configPath, verbose, !foreground)
		},
	}
	startCmd.Flags().String("daemon", "", "Path to daemon binary")
	startCmd.Flags().String("socket", "", "Unix socket path (default from config)")
	startCmd.Flags().Bool("foreground", false, "Keep the daemon attached to this terminal")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runStop(resolveSocket("", configPath))
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return runStatus(resolveSocket("", configPath), jsonOutput)
		},
	}
	statusCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	commands.RootCmd.AddCommand(startCmd)
	commands.RootCmd.AddCommand(stopCmd)
	commands.RootCmd.AddCommand(statusCmd)

	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`cflow version {{.Version}}
`)
	commands.RootCmd.Version = version

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveSocket returns socketPath or the socket configured in configPath
// (or the layered config when configPath is empty).
func resolveSocket(socketPath, configPath string) string {
	if socketPath != "" {
		return socketPath
	}
	var conf *config.Config
	var err error
	if configPath != "" {
		conf, err = config.LoadFromFile(configPath)
	} else {
		conf, err = config.Load()
	}
	if err != nil {
		conf = config.DefaultConfig()
	}
	return conf.SocketPath
}

func runStart(daemonPath, socketPath, configPath string, verbose, background bool) error {
	opts := &daemon.StartOptions{
		DaemonPath:   daemonPath,
		SocketPath:   socketPath,
		ConfigPath:   configPath,
		Verbose:      verbose,
		WaitForReady: true,
		ReadyTimeout: daemon.ReadyTimeout,
		Background:   background,
	}

	spinner := log.NewProgressSpinner("Starting daemon...")
	spinner.Start()
	result, err := daemon.Start(opts)
	spinner.Stop()
	if err != nil {
		return err
	}

	if !result.Success {
		if result.Error != "" {
			fmt.Printf("Failed to start daemon: %s\n", result.Error)
		}
		if result.PID > 0 && result.Ready {
			fmt.Printf("Daemon already running with PID %d\n", result.PID)
		}
		return nil
	}

	fmt.Printf("Daemon started with PID %d\n", result.PID)
	if result.LogFile != "" {
		fmt.Printf("Log: %s\n", result.LogFile)
	}
	return nil
}

func runStop(socketPath string) error {
	result, err := daemon.Stop(socketPath)
	if err != nil {
		return err
	}

	if !result.Success {
		if result.Error != "" {
			fmt.Printf("Failed to stop daemon: %s\n", result.Error)
		}
		return nil
	}

	if result.Forced {
		fmt.Printf("Daemon killed (PID: %d)\n", result.PID)
	} else {
		fmt.Printf("Daemon stopped (PID: %d)\n", result.PID)
	}
	return nil
}

func runStatus(socketPath string, jsonOutput bool) error {
	result := daemon.GetStatus(socketPath)

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Status: %s\n", result.Status)
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
		return nil
	}
	if result.PID > 0 {
		fmt.Printf("PID: %d\n", result.PID)
	}
	fmt.Printf("Socket: %s\n", result.SocketPath)
	if !result.StartedAt.IsZero() {
		fmt.Printf("Started: %s\n", result.StartedAt.Format(time.RFC3339))
	}
	if info := result.Info; info != nil {
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Requests: %d\n", info.Requests)
		fmt.Printf("Cache: %d graphs, hit rate %.0f%%\n", info.Cache.Length, info.Cache.HitRate*100)
	}
	return nil
}
