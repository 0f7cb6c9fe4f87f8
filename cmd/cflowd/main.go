// Package main implements the codeflow daemon (cflowd).
// It serves flowchart requests over a Unix domain socket (TCP on Windows)
// and keeps recently built graphs in an LRU cache that survives restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
)

var version = "dev"

func usage() {
	fmt.Println("Usage: cflowd [options]")
	fmt.Println("Options:")
	fmt.Println("  --socket PATH   Unix socket path (default: /tmp/cflow.sock)")
	fmt.Println("  --config PATH   Config file path")
	fmt.Println("  -v, --verbose   Verbose logging")
	fmt.Println("  --version       Print version")
	fmt.Println("  -h, --help      Show this help")
}

func main() {
	socketPath := ""
	configPath := ""
	verbose := false

	for i := 1; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "-socket", "--socket":
			if i+1 < len(os.Args) {
				socketPath = os.Args[i+1]
				i++
			}
		case "-config", "--config":
			if i+1 < len(os.Args) {
				configPath = os.Args[i+1]
				i++
			}
		case "-v", "--verbose", "-verbose":
			verbose = true
		case "-version", "--version":
			fmt.Printf("cflowd version %s\n", version)
			os.Exit(0)
		case "-h", "--help", "-help":
			usage()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown option %s\n", os.Args[i])
			usage()
			os.Exit(2)
		}
	}

	if err := run(socketPath, configPath, verbose); err != nil {
		fmt.Fprintf(os.Stderr, "cflowd: %v\n", err)
		os.Exit(1)
	}
}

func run(socketPath, configPath string, verbose bool) error {
	var conf *config.Config
	var err error
	if configPath != "" {
		conf, err = config.LoadFromFile(configPath)
	} else {
		conf, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if socketPath != "" {
		conf.SocketPath = socketPath
	}

	level := log.InfoLevel
	if verbose || conf.Verbose {
		level = log.DebugLevel
	}
	logger := log.New(log.LoggerConfig{Level: level, JSONOutput: conf.LogJSON})

	graphs := cache.New(cache.Options{
		MaxSize: conf.CacheSize,
		OnEvict: func(key string, _ *cfg.FlowGraph) {
			logger.Debug("cache evict", "key", key)
		},
	})
	if conf.CacheFile != "" {
		if err := cache.LoadFromFile(graphs, conf.CacheFile); err != nil {
			logger.Warn("discarding graph cache", "file", conf.CacheFile, "err", err)
		} else if n := graphs.Len(); n > 0 {
			logger.Info("graph cache loaded", "entries", n)
		}
	}

	srv := daemon.NewServer(flowchart.NewGenerator(graphs), daemon.ServerOptions{
		Version:          version,
		Options:          conf.BuildOptions(),
		MaxFunctionBytes: conf.MaxFunctionBytes,
		Logger:           logger,
	})

	l, err := daemon.Listen(conf.SocketPath)
	if err != nil {
		return err
	}

	// Started by hand rather than through `cflow start`.
	pid := os.Getpid()
	if existing, err := daemon.ReadPID(); err != nil || existing != pid {
		if err := daemon.WritePID(pid); err != nil {
			logger.Warn("writing PID file", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network, address := daemon.Endpoint(conf.SocketPath)
	logger.Info("cflowd started", "version", version, "network", network, "address", address, "pid", pid)

	serveErr := srv.Serve(ctx, l)
	logger.Info("shutting down")

	if conf.CacheFile != "" {
		if err := cache.PersistToFile(graphs, conf.CacheFile); err != nil {
			logger.Error("saving graph cache", "file", conf.CacheFile, "err", err)
		}
	}
	if existing, err := daemon.ReadPID(); err == nil && existing == pid {
		daemon.RemovePID()
		daemon.RemoveStatus()
	}
	if network == "unix" {
		os.Remove(address)
	}
	return serveErr
}
