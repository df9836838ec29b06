// Package main provides the entry point for the locator daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/config"
	"github.com/trose/ice-locator-go/internal/core"
	"github.com/trose/ice-locator-go/internal/handlers"
	"github.com/trose/ice-locator-go/internal/middleware"
	"github.com/trose/ice-locator-go/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("locatord %s (%s)\n", version.Full(), version.GoVersion())
		return
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	cfg.Validate()

	printBanner(cfg)

	c, err := core.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble core")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := c.Initialize(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize browser cluster")
	}
	cancel()

	handler := middleware.Chain(
		handlers.New(c).Router(),
		middleware.Recovery,
		middleware.Logging,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.BrowserTimeout + 10*time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}
	if err := c.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Cluster shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog with console output and the configured
// level.
func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 2)
	bannerDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2)
)

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, bannerStyle.Render(fmt.Sprintf("locatord %s", version.Full())))
	fmt.Fprintln(os.Stderr, bannerDimStyle.Render(fmt.Sprintf(
		"instances=%d rpm=%d burst=%d session_timeout=%s captcha=%t",
		cfg.MaxInstances, cfg.RequestsPerMinute, cfg.BurstAllowance,
		cfg.SessionTimeout, cfg.CaptchaEnabled,
	)))
}
