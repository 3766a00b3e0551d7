// Package daemon owns the process lifecycle: logger setup, PID file,
// signal-driven graceful shutdown, and the stop/status commands that act on
// a running instance from a second invocation of the binary.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/admin"
	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/runner"
	"github.com/allaspectsdev/otel-api-scraper/internal/version"
)

const logFilename = "otel-api-scraper.log"
const backgroundLogFilename = "otel-api-scraper.out.log"

// RuntimeDir resolves where the PID file and daemon logs live.
// SCRAPER_RUNTIME_DIR wins when set; otherwise /var/run is tried first
// (containers typically run as root and can write it) and
// $HOME/.otel-api-scraper is the fallback for unprivileged local runs.
func RuntimeDir() string {
	if dir := os.Getenv("SCRAPER_RUNTIME_DIR"); dir != "" {
		return dir
	}
	const systemDir = "/var/run/otel-api-scraper"
	if err := os.MkdirAll(systemDir, 0o755); err == nil {
		return systemDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".otel-api-scraper")
	}
	return "."
}

// Run is the daemon orchestrator: it sets up logging, writes the PID file,
// wires the runner and optional admin API, and blocks until a shutdown
// signal or fatal admin-server error.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := RuntimeDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating runtime directory %s: %w", dataDir, err)
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Scraper.LogLevel))

	logPath := filepath.Join(dataDir, logFilename)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	writers := []io.Writer{logFile}
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Str("service", "otel-api-scraper").Logger()

	log.Info().
		Str("version", version.Version).
		Str("runtime_dir", dataDir).
		Int("sources", len(cfg.Sources)).
		Bool("foreground", foreground).
		Msg("otel-api-scraper starting")

	if IsRunning(dataDir) {
		return fmt.Errorf("otel-api-scraper is already running (PID file exists at %s)", pidPath(dataDir))
	}
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	r, err := runner.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("wiring runner: %w", err)
	}
	r.Start(ctx)

	var adminSrv *admin.Server
	errCh := make(chan error, 1)
	if cfg.Scraper.EnableAdminAPI {
		addr := fmt.Sprintf(":%d", cfg.Scraper.ServicePort)
		adminSrv = admin.New(r.Engine(), addr, cfg.Scraper.AdminSecretEnv, log)
		go func() {
			log.Info().Str("addr", addr).Msg("admin API starting")
			if err := adminSrv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("admin API failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin API shutdown error")
		}
	}
	if err := r.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("runner shutdown: %w", err)
	}

	log.Info().Msg("otel-api-scraper stopped")
	return nil
}

// RunOnce wires the runner, scrapes every configured source exactly once,
// and tears everything down. Used by the `run` subcommand for ad-hoc and
// cron-style invocations.
func RunOnce(cfg *config.Config) error {
	zerolog.SetGlobalLevel(parseLogLevel(cfg.Scraper.LogLevel))
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("service", "otel-api-scraper").Logger()

	ctx := context.Background()
	r, err := runner.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("wiring runner: %w", err)
	}
	r.RunOnce(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// StartBackground re-execs this binary detached from the current terminal,
// running `start --foreground` in its own session with output routed to the
// runtime directory. Returns the child PID.
func StartBackground() (int, error) {
	dataDir := RuntimeDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating runtime directory %s: %w", dataDir, err)
	}
	if IsRunning(dataDir) {
		return 0, fmt.Errorf("otel-api-scraper is already running (PID file exists at %s)", pidPath(dataDir))
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("determining executable path: %w", err)
	}

	out, err := os.OpenFile(filepath.Join(dataDir, backgroundLogFilename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening background log: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(exe, "start", "--foreground")
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting background process: %w", err)
	}
	return cmd.Process.Pid, nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon, waiting
// briefly for it to exit.
func Stop() error {
	dataDir := RuntimeDir()

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("otel-api-scraper does not appear to be running: %w", err)
	}
	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("otel-api-scraper is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to otel-api-scraper (PID %d)\n", pid)

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return fmt.Errorf("process %d did not exit within 5s", pid)
}

// Status reports whether the daemon is running and, when the admin API is
// enabled, whether its health endpoint answers.
func Status(cfg *config.Config) error {
	dataDir := RuntimeDir()
	pid, err := ReadPID(dataDir)
	if err != nil || !isProcessAlive(pid) {
		return fmt.Errorf("otel-api-scraper is not running")
	}
	fmt.Printf("otel-api-scraper is running (PID %d)\n", pid)

	if cfg == nil || !cfg.Scraper.EnableAdminAPI {
		return nil
	}
	healthURL := fmt.Sprintf("http://localhost:%d/health", cfg.Scraper.ServicePort)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(healthURL)
	if err != nil {
		fmt.Println("  (admin API unreachable)")
		return nil
	}
	defer resp.Body.Close()
	fmt.Printf("  Admin API: %s (%d)\n", healthURL, resp.StatusCode)
	return nil
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
