package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/dovidio/colino-backend/internal/config"
	"github.com/dovidio/colino-backend/provider"
	"github.com/dovidio/colino-backend/server"
	"github.com/dovidio/colino-backend/sessions"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	for {
		if err := run(cfg); err != nil {
			log.Error().Err(err).Msg("server error, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(cfg.AppName)

	stopTracing, err := setupTracing(cfg)
	if err != nil {
		return err
	}
	defer stopTracing()

	repo, err := newSessionRepo(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer repo.Close()

	google, err := provider.NewGoogle(context.Background(), provider.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Issuer:       cfg.GoogleIssuer,
	})
	if err != nil {
		return fmt.Errorf("failed to configure provider: %w", err)
	}

	srv, err := server.New(cfg, repo, google)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	if addr := cfg.MetricsAddr(); addr != "" {
		go func() {
			log.Info().Str("addr", addr).Msg("metrics listening")
			if err := srv.RunMetrics(addr); err != nil {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	stopReaper := startSessionReaper(cfg, repo)
	defer stopReaper()

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.IsDev() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// For relevant environment variables:
// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
// At a minimum, you need to set
// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
func setupTracing(cfg *config.Config) (func(), error) {
	ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if ep == "" {
		return func() {}, nil
	}

	log.Info().Str("endpoint", ep).Msg("setting up trace exporter")
	exp, err := otlptracehttp.New(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("colino-auth"),
			attribute.String("env", cfg.Env),         // DataDog
			attribute.String("environment", cfg.Env), // Others
			attribute.Int64("ID", 1),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := exp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown trace exporter")
		}
	}, nil
}

func newSessionRepo(cfg *config.Config) (sessions.Repo, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		return sessions.NewRedisRepo(cfg.RedisURL)
	case config.StoreSQLite:
		return sessions.NewSQLiteRepo(cfg.SQLitePath)
	default:
		return sessions.NewInMemoryRepo(), nil
	}
}

// startSessionReaper sweeps expired sessions out of stores that cannot
// expire entries on their own. Redis expires keys natively.
func startSessionReaper(cfg *config.Config, repo sessions.Repo) func() {
	if cfg.SessionStore == config.StoreRedis {
		return func() {}
	}

	ticker := time.NewTicker(time.Minute)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := repo.DeleteExpired(context.Background(), time.Now().UTC()); err != nil {
					log.Warn().Err(err).Msg("failed to delete expired sessions")
				}
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
