package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/logger"
	"github.com/trialkit/codify/server"
)

// ServeCmd starts the codify HTTP server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the codify HTTP server",
	Long: `Launch the codify server. It starts codification runs over HTTP,
reports stored run state, and streams live status narration to
WebSocket subscribers while runs execute in the background.

Endpoints:
  GET  /runs               List recorded runs
  POST /runs               Start a codification run
  GET  /runs/{id}          Show one run
  GET  /runs/{id}/events   WebSocket status stream
  GET  /health             Store and engine health
  GET  /version            Build information`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (0 = config default)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	port := servePort
	if port == 0 {
		port = cfg.GetServerPort()
	}

	// Open and migrate database
	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	srv, err := server.New(cfg, database, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	watcher := setupConfigWatcher(srv)
	if watcher != nil {
		defer watcher.Stop()
	}

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	// Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Server failed to start or stopped unexpectedly
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// setupConfigWatcher watches the loaded config file so origin allowlist
// changes apply to the running server without a restart. Returns nil
// when no config file is in play.
func setupConfigWatcher(srv *server.Server) *config.Watcher {
	configPath := config.GetViper().ConfigFileUsed()
	if configPath == "" {
		logger.Logger.Infow("No config file found, using defaults (config watching disabled)")
		return nil
	}

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		logger.Logger.Warnw("Failed to create config watcher, manual restart required for config changes", "error", err)
		return nil
	}

	// The global watcher lets config.Update mark its own writes so
	// saves from this process do not trigger a reload.
	config.SetGlobalWatcher(watcher)

	watcher.OnReload(func(newCfg *config.Config) error {
		srv.UpdateAllowedOrigins(newCfg.GetServerAllowedOrigins())
		return nil
	})

	watcher.Start()
	logger.Logger.Infow("Config watcher started", "path", configPath)
	return watcher
}
