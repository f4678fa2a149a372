// Package server owns the HTTP surface: the Twilio webhook and the health
// endpoint.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/deskhelp/deskbot/internal/handler"
	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/svc"
)

// Run starts the HTTP server and blocks until ctx is cancelled. The caller
// owns the ServiceContext lifecycle.
func Run(ctx context.Context, svcCtx *svc.ServiceContext) error {
	c := svcCtx.Config

	if err := checkPortAvailable(c.Server.Host, c.Server.Port); err != nil {
		return fmt.Errorf("port %d is already in use: %w", c.Server.Port, err)
	}

	r := chi.NewRouter()
	if !c.Server.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handler.HealthCheckHandler(svcCtx))
	r.Post("/webhook", handler.WebhookHandler(svcCtx))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// checkPortAvailable reports whether the port can be bound right now.
func checkPortAvailable(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
