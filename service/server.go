package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	ghandlers "github.com/gorilla/handlers"
	"github.com/pitabwire/util"
	"github.com/pkg/errors"

	"github.com/backflowhq/service-authgate/config"
)

// RunServer starts the HTTP server and blocks until a shutdown signal.
// The router is wrapped in panic recovery and CSRF protection; a recovered
// panic surfaces as a 500, never as a granted request.
func RunServer(ctx context.Context, cfg *config.AuthGateConfig, router http.Handler) error {

	waitDuration := time.Second * 15
	log := util.Log(ctx)

	csrfSecret, err := hex.DecodeString(cfg.CsrfSecret)
	if err != nil {
		return errors.Wrap(err, "could not decode csrf secret")
	}

	srv := &http.Server{
		Addr: fmt.Sprintf("0.0.0.0:%s", cfg.ServerPort),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,

		Handler: ghandlers.RecoveryHandler()(
			csrf.Protect(
				csrfSecret,
				csrf.Secure(cfg.SecureCookies),
			)(router)),
	}

	// Run server in a goroutine so that it doesn't block.
	go func() {
		log.WithField("port", cfg.ServerPort).Info("service running")

		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithError(serveErr).Fatal("service stopping due to error")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal or the surrounding context ends.
	select {
	case <-c:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), waitDuration)
	defer cancel()

	// Doesn't block if no connections, but will otherwise wait
	// until the timeout deadline.
	err = srv.Shutdown(shutdownCtx)
	log.WithField("at", time.Now()).Info("service shutting down")
	return err
}
