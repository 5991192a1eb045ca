// Command devidentity runs the development identity service and resource API.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workfolio/cmd/internal/devidentity"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := devidentity.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if cfg.SigningKey == "" {
		b := make([]byte, devidentity.MinKeyBytes)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		cfg.SigningKey = hex.EncodeToString(b)
		logger.Warn("dev.signing_key.generated", "hint", "set PORTAL_DEV_SIGNING_KEY to keep credentials valid across restarts")
	}

	issuer, err := devidentity.NewIssuer(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           devidentity.NewServer(logger, issuer, cfg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev.server.start", "addr", cfg.Addr, "access_ttl", cfg.AccessTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
