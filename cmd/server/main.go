package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/rkchat/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()
	logger := newLogger(config.LogLevel)

	logger.Info("Starting RKchat server...")

	srv := server.NewServer(config, logger)
	if err := srv.Listen(); err != nil {
		logger.WithError(err).Error("Could not start chat listener")
		os.Exit(1)
	}

	httpServer := startHTTP(config, srv, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("Accept loop failed")
			exitCode = 1
		}
	}

	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, config.ShutdownTimeout, logger)
	}
	if err := srv.Shutdown(config.ShutdownTimeout); err != nil {
		logger.WithError(err).Warn("Chat server did not shut down cleanly")
	}

	os.Exit(exitCode)
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level; using info")
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// startHTTP serves health, status, and the WebSocket bridge unless disabled.
func startHTTP(config *server.Config, srv *server.Server, logger *logrus.Logger) *http.Server {
	if config.HTTPPort == "" {
		return nil
	}

	httpServer := server.CreateServer(config.HTTPPort, server.SetupRoutes(srv))
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}()
	return httpServer
}
