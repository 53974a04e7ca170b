package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thisai/billsync/internal/logging"
	"github.com/thisai/billsync/internal/remote/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend server",
	Long: `Run the billsync backend server in the foreground. This is the same
server as the billsync-server binary, embedded for local setups and testing.

Examples:
  billsync serve
  billsync serve --listen 0.0.0.0:8780 --data-dir /var/lib/billsync --api-token sekret`,
	Run: runServe,
}

var (
	serveListen   string
	serveDataDir  string
	serveAPIToken string
	serveLogLevel string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "127.0.0.1:8780", "Listen address (host:port)")
	f.StringVar(&serveDataDir, "data-dir", ".billsync-server", "Directory for server data")
	f.StringVar(&serveAPIToken, "api-token", os.Getenv("BILLSYNC_API_TOKEN"), "Shared bearer token (empty disables auth)")
	f.StringVar(&serveLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

func runServe(cmd *cobra.Command, args []string) {
	logger := logging.New(os.Stdout, logging.ParseLevel(serveLogLevel), "text")

	if err := os.MkdirAll(serveDataDir, 0755); err != nil {
		exitError("failed to create data directory: %v", err)
	}

	docs, err := server.OpenDocStore(filepath.Join(serveDataDir, "documents.db"))
	if err != nil {
		exitError("failed to open document store: %v", err)
	}
	defer docs.Close()

	cfg := server.DefaultServerConfig()
	cfg.APIToken = serveAPIToken
	if cfg.APIToken == "" {
		logger.Warn("no API token configured, authentication is disabled")
	}

	h, handlerCleanup := server.Handler(docs, cfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:         serveListen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "listen", serveListen, "data_dir", serveDataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			exitError("server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
