// Command server runs the chattalk backend: a metered chat service where
// clients fund a wallet through operator-approved top-ups and are billed a
// fixed amount per minute of active session time.
//
// Startup order matters: the database is opened and migrated, sessions left
// active by a previous process are swept closed, and only then does the HTTP
// surface come up. Shutdown reverses it: stop accepting requests, stop the
// billing timers, close the event hub.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chattalk/backend/internal/config"
	httpapi "github.com/chattalk/backend/internal/http"
	"github.com/chattalk/backend/internal/observability"
	"github.com/chattalk/backend/internal/repo"
	"github.com/chattalk/backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Optional .env for local development; real deployments set the env.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	// Sessions left active by a crashed or restarted process never tick again,
	// so close their rows before serving traffic.
	if n, err := repo.CloseStaleSessions(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("sweep stale sessions")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("stale sessions closed")
	}

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	app := httpapi.NewApp(db, cfg)

	r := gin.New()
	httpapi.RegisterRoutes(r, app, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Stop billing timers after the HTTP surface so no new session can start
	// mid-teardown, then drop all event subscribers.
	app.Sessions.Shutdown(ctx)
	app.Hub.Close()

	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}

	log.Info().Msg("bye")
}
