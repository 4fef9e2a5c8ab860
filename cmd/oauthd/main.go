package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"go.pilab.hu/oauth"
	echoapi "go.pilab.hu/oauth/api/echo"
	"go.pilab.hu/oauth/config"
	"go.pilab.hu/oauth/domain"
	"go.pilab.hu/oauth/log"
	"go.pilab.hu/oauth/memstore"
	"go.pilab.hu/oauth/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting oauthd", map[string]interface{}{
		"http_port": cfg.HTTPPort,
		"issuer":    cfg.Issuer,
		"log_level": cfg.LogLevel,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Error(ctx, "Failed to initialize TracerProvider", err)
		os.Exit(1)
	}

	store := memstore.New()
	defer store.Close()
	seedDemoData(store)

	server := oauth.NewServer(store, oauth.ServerConfig{
		Issuer:          cfg.Issuer,
		AuthCodeTTL:     time.Duration(cfg.AuthCodeTTLSec) * time.Second,
		AuthRequestTTL:  time.Duration(cfg.AuthRequestTTLSec) * time.Second,
		DeviceCodeTTL:   time.Duration(cfg.DeviceCodeTTLSec) * time.Second,
		DeviceInterval:  cfg.DeviceIntervalSec,
		AccessTokenTTL:  cfg.AccessTokenTTL(),
		RefreshTokenTTL: cfg.RefreshTokenTTL(),
		VerificationURI: cfg.VerificationURI,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	echoapi.NewOAuth2API(server).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			appLogger.Error(ctx, "HTTP server stopped", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err)
	}
}

// seedDemoData registers a development client so the daemon is usable out of
// the box. Real deployments replace memstore with their own repositories.
func seedDemoData(store *memstore.Store) {
	store.SetScopes([]string{"read", "write", "profile"})
	store.AddClient(&domain.Client{
		ID:           "dev-client",
		Secret:       "dev-secret",
		Name:         "Development client",
		RedirectURIs: []string{"http://localhost:9000/callback"},
		Scopes:       []string{"read", "write"},
		Active:       true,
		CreatedAt:    time.Now(),
	})
}
