package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/60cod/realtime-translator/cache"
	"github.com/60cod/realtime-translator/config"
	"github.com/60cod/realtime-translator/internal/types"
	"github.com/60cod/realtime-translator/pipeline"
	"github.com/60cod/realtime-translator/recognition"
	"github.com/60cod/realtime-translator/translation"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file path (default: user config dir)")
		targetLang  = flag.String("target", "", "override target language")
		sourceLang  = flag.String("source", "", "override source language (empty: auto-detect)")
		jsonOutput  = flag.Bool("json", false, "emit events as JSON lines")
		showVersion = flag.Bool("version", false, "print version and exit")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("realtime-translator %s (%s)\n", version, commit)
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *targetLang, *sourceLang, *jsonOutput); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, targetLang, sourceLang string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if targetLang != "" {
		cfg.TargetLang = targetLang
	}
	if sourceLang != "" {
		cfg.SourceLang = sourceLang
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	client, store, err := buildTranslationClient(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("close cache", "error", err)
			}
		}()
	}

	coord, err := pipeline.New(pipeline.Config{
		Session: recognition.SessionConfig{
			Tokens: &recognition.HTTPTokenSource{
				Endpoint:   cfg.Recognition.TokenEndpoint,
				SocketBase: cfg.Recognition.SocketBase,
			},
			ConnectTimeout:       cfg.Recognition.ConnectTimeout(),
			MaxReconnectAttempts: cfg.Recognition.MaxReconnectAttempts,
			ReconnectDelay:       cfg.Recognition.ReconnectDelay(),
		},
		Client: client,
		Queue: translation.QueueConfig{
			MaxBatchSize:    cfg.Translation.MaxBatchSize,
			RetryDelay:      cfg.Translation.RetryDelay(),
			InterBatchDelay: cfg.Translation.InterBatchDelay(),
		},
		TargetLang: cfg.TargetLang,
		SourceLang: cfg.SourceLang,
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = coord.Start(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	slog.Info("listening", "status", coord.Status())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case ev := <-coord.Transcripts():
			if jsonOutput {
				enc.Encode(ev)
			} else if ev.Kind == types.TranscriptFinal {
				fmt.Printf("[%s] %s\n", shortID(ev.CorrelationID), ev.Text)
			}
		case ev := <-coord.Translations():
			if jsonOutput {
				enc.Encode(ev)
			} else if ev.Err != "" {
				fmt.Printf("[%s] ! %s\n", shortID(ev.CorrelationID), ev.Err)
			} else {
				fmt.Printf("[%s] > %s\n", shortID(ev.CorrelationID), ev.Text)
			}
		case perr := <-coord.Errors():
			slog.Warn("pipeline", "kind", perr.Kind, "message", perr.Message)
		case <-coord.Done():
			slog.Info("session ended")
			return nil
		case sig := <-sigs:
			slog.Info("shutting down", "signal", sig)
			coord.Stop()
			return nil
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// buildTranslationClient assembles the configured backend, wrapped with
// the persistent cache when one is configured.
func buildTranslationClient(cfg *config.Config) (translation.Client, *cache.Cache, error) {
	var client translation.Client
	switch cfg.Translation.Backend {
	case config.BackendLLM:
		client = translation.NewLLMClient(os.Getenv("OPENAI_API_KEY"), cfg.Translation.Model)
	default:
		client = &translation.HTTPClient{
			Endpoint: cfg.Translation.Endpoint,
			AuthKey:  cfg.Translation.AuthKey,
		}
	}

	if cfg.CacheDir == "" {
		return client, nil, nil
	}

	store, err := cache.Open(cfg.CacheDir)
	if err != nil {
		// A broken cache should not block translation.
		slog.Error("open cache", "error", err, "path", cfg.CacheDir)
		return client, nil, nil
	}
	slog.Info("cache initialized", "path", cfg.CacheDir)
	return &translation.CachedClient{
		Inner: client,
		Cache: store,
		Scope: cfg.Translation.Backend,
	}, store, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server", "error", err)
	}
}
