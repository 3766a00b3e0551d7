// Command scraperd is the long-running telemetry scraping agent: it loads a
// declarative source configuration, wires the stores, gateway, pipeline,
// emitter, engine, and scheduler, and polls until stopped.
package main

import (
	"fmt"
	"os"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/daemon"
	"github.com/allaspectsdev/otel-api-scraper/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "run":
		cmdRun()
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig resolves the config path from SCRAPER_CONFIG and loads it.
// A missing file is exit code 1, per the CLI contract.
func loadConfig() *config.Config {
	configPath := os.Getenv("SCRAPER_CONFIG")
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}
	if _, err := os.Stat(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "config file %s not found: %v\n", configPath, err)
		os.Exit(1)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdStart(args []string) {
	foreground := false
	for _, a := range args {
		if a == "--foreground" || a == "-f" {
			foreground = true
		}
	}

	cfg := loadConfig()

	if !foreground {
		pid, err := daemon.StartBackground()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("otel-api-scraper started in background (PID %d)\n", pid)
		return
	}

	if err := daemon.Run(cfg, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStop() {
	if err := daemon.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("otel-api-scraper stopped")
}

func cmdStatus() {
	// Status works without a readable config; the config only adds the
	// admin health probe.
	var cfg *config.Config
	configPath := os.Getenv("SCRAPER_CONFIG")
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}
	if _, err := os.Stat(configPath); err == nil {
		cfg, _ = config.Load(configPath)
	}
	if err := daemon.Status(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func cmdRun() {
	cfg := loadConfig()
	if err := daemon.RunOnce(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: scraperd <command> [options]

Commands:
  start            Start the scraper daemon (background unless --foreground)
  stop             Stop the running daemon
  status           Show daemon status
  run              Scrape every configured source once, then exit
  version          Print version information
  help             Show this help message

Options:
  --foreground, -f   Run in foreground (with 'start')

Environment:
  SCRAPER_CONFIG       Path to config file (default config.yaml)
  SCRAPER_RUNTIME_DIR  Where the PID file and daemon logs live`)
}
