package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/jitr/internal/handler"
	"github.com/wolfeidau/jitr/internal/logger"
)

type ServerCmd struct {
	Listen      string        `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"JITR_LISTEN"`
	CORSOrigins []string      `help:"allowed CORS origins" env:"JITR_CORS_ORIGINS"`
	DrainPeriod time.Duration `help:"time to report not ready before shutting down" default:"5s" env:"JITR_DRAIN_PERIOD"`

	Dealer DealerFlags `embed:""`
	AWS    AWSFlags    `embed:"" prefix:"aws-"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	defer setupTelemetry(ctx, c.Dealer.Telemetry, "jitr-server", globals.Version)()

	handlers, err := newHandlers(ctx, c.Dealer, c.AWS)
	if err != nil {
		return err
	}

	srv := handler.NewServer(handlers)
	httpServer := configureHTTPServer(c.Listen, srv.Router(handler.RouterOptions{
		Logger:         log,
		AllowedOrigins: c.CORSOrigins,
	}))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// give load balancers time to notice before connections close
	srv.Drain()
	time.Sleep(c.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful HTTP server shutdown failed")
		return err
	}

	log.Info().Msg("HTTP server gracefully stopped")

	return nil
}
