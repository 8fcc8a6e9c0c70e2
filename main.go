// RepairMind print agent: connects repair-shop printers to the RepairMind
// backend over a persistent websocket and prints receipts, documents and
// labels pushed by the platform.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kardianos/service"

	"repairmind/print-agent/logger"
	"repairmind/print-agent/storage"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	generateConfig := flag.Bool("generate-config", false, "write a starter config.toml and exit")
	serviceCmd := flag.String("service", "", "service command: install, uninstall, start, stop, status, run")
	showVersion := flag.Bool("version", false, "print version and exit")
	quiet := flag.Bool("quiet", false, "suppress console output")
	testPrint := flag.Bool("test-print", false, "queue a test page on the default printer at startup")
	flag.Parse()

	if *showVersion {
		fmt.Printf("repairmind-print-agent %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *generateConfig {
		path := *configPath
		if path == "" {
			path = "config.toml"
		}
		if err := WriteDefaultConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at %s\n", path)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, *configPath)
		return
	}

	if !service.Interactive() {
		runAsService(*configPath)
		return
	}

	opts := runOptions{configPath: *configPath, quiet: *quiet, testPrint: *testPrint}
	if err := runAgent(signalContext(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath string
	quiet      bool
	testPrint  bool
}

// runAgent is the common path for interactive and service execution.
func runAgent(ctx context.Context, opts runOptions) error {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	logDir := cfg.Logging.Dir
	if logDir == "" {
		if dir, err := storage.LogDir(); err == nil {
			logDir = dir
		} else {
			logDir = "logs"
		}
	}
	log := logger.New(logger.LevelFromString(cfg.Logging.Level), logDir, 1000)
	defer log.Close()
	if opts.quiet {
		log.SetConsoleOutput(false)
	}

	dbPath, err := storage.DefaultConfigDBPath()
	if err != nil {
		return fmt.Errorf("resolving settings path: %w", err)
	}
	store, err := storage.NewConfigStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer store.Close()

	agent, err := NewAgent(cfg, store, log, opts.quiet)
	if err != nil {
		return err
	}

	if opts.testPrint {
		if err := agent.EnqueueTestPrint(); err != nil {
			log.Warn("test print not queued", "error", err)
		}
	}

	return agent.Run(ctx)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
