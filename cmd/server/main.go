package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obiente/translate/scribe/internal/config"
	serverhttp "github.com/obiente/translate/scribe/internal/http"
	"github.com/obiente/translate/scribe/internal/metrics"
	"github.com/obiente/translate/scribe/internal/recognizer"
	"github.com/obiente/translate/scribe/internal/report"
	"github.com/obiente/translate/scribe/internal/session"
	"github.com/obiente/translate/scribe/internal/ws"
)

var (
	v       = viper.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:          "scribe",
	Short:        "Relay live audio to a streaming speech recognizer",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription server",
	RunE:  runServe,
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(v)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("addr", ":8080", "HTTP listen address")
	rootCmd.PersistentFlags().String("backend", config.BackendGoogle, "Recognition backend: google, deepgram or whisper (whisper needs a build with -tags whisper_cpp)")
	rootCmd.PersistentFlags().String("language", "en-US", "Recognition language")
	rootCmd.PersistentFlags().String("reports-dir", "reports", "Directory for transcript reports")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format: json or console")

	for _, name := range []string{"addr", "backend", "language", "reports-dir", "log-level", "log-format"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal().Err(err).Msg("read config")
		}
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		lvl = l
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.Level(lvl)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if f := v.ConfigFileUsed(); f != "" {
		log.Info().Str("file", f).Msg("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := recognizer.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	store := report.NewStore(cfg.ReportsDir)
	registry := session.NewRegistry(session.Options{
		Recognizer:      rec,
		StreamConfig:    recognizer.StreamConfig(cfg),
		Reports:         store,
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		QueueWarnFrames: cfg.QueueWarnFrames,
	})

	wss := ws.NewServer(registry, cfg.WriteTimeout, cfg.SampleRate)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           serverhttp.NewRouter(registry, wss, store, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", rec.Name()).Str("reports_dir", cfg.ReportsDir).Msg("scribe server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sessions did not drain before timeout")
	}
	log.Info().Msg("scribe server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
