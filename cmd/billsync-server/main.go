// Command billsync-server runs the billsync backend server.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/thisai/billsync/internal/logging"
	"github.com/thisai/billsync/internal/remote/server"
)

func main() {
	listen := flag.String("listen", envOrDefault("BILLSYNC_LISTEN", "0.0.0.0:8780"), "Listen address")
	dataDir := flag.String("data-dir", envOrDefault("BILLSYNC_DATA_DIR", "/var/lib/billsync-server"), "Data directory")
	apiToken := flag.String("api-token", os.Getenv("BILLSYNC_API_TOKEN"), "Shared bearer token (empty disables auth)")
	logLevel := flag.String("log-level", envOrDefault("BILLSYNC_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("BILLSYNC_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("BILLSYNC_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("BILLSYNC_TLS_KEY"), "TLS key file")
	flag.Parse()

	logger := logging.New(os.Stdout, logging.ParseLevel(*logLevel), *logFormat)

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", *dataDir)
		os.Exit(1)
	}

	docs, err := server.OpenDocStore(filepath.Join(*dataDir, "documents.db"))
	if err != nil {
		logger.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	cfg := server.DefaultServerConfig()
	cfg.APIToken = *apiToken
	if cfg.APIToken == "" {
		logger.Warn("no API token configured, authentication is disabled")
	}

	h, handlerCleanup := server.Handler(docs, cfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:         *listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting billsync-server", "listen", *listen, "data_dir", *dataDir)
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
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

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
