// Package boot provides the startup steps shared by video-cli and video-web.
//
// Both binaries need some subset of: configuration, logging, EMF output, a
// Gemini-backed analyzer and a history store. This package extracts the
// common init so each main is a short composition of helpers.
package boot

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/cli"
	"github.com/fpang/video-insight/internal/config"
	"github.com/fpang/video-insight/internal/gemini"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/logging"
	"github.com/fpang/video-insight/internal/media"
	"github.com/fpang/video-insight/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Init loads the config at path (empty for the default location), then sets
// up logging and EMF output. EMF lines go to emfOut when the config enables
// them. Fatals on an invalid config.
func Init(path, service string, emfOut io.Writer) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logging.Init()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.InitWithFormat(cfg.Log.Level, cfg.Log.Format)
	if cfg.Path != "" {
		log.Debug().Str("path", cfg.Path).Msg("Configuration loaded")
	}

	metrics.SetService(service)
	if cfg.Metrics.EMF {
		metrics.SetOutput(emfOut)
	} else {
		metrics.SetOutput(nil)
	}
	return cfg
}

// InitAnalyzer creates a Gemini client and wraps it in an Analyzer configured
// from cfg. When validate is set the API key is checked first.
func InitAnalyzer(ctx context.Context, cfg *config.Config, validate bool) *analysis.Analyzer {
	start := time.Now()
	client := cli.InitGeminiClient(ctx, validate)
	a := analysis.NewAnalyzer(gemini.NewClient(client), cfg.AnalysisOptions())
	log.Debug().
		Str("model", a.Options().Model).
		Dur("elapsed", time.Since(start)).
		Msg("Analyzer ready")
	return a
}

// InitHistory opens the configured history store. Fatals on error.
func InitHistory(ctx context.Context, cfg *config.Config) history.Store {
	store, err := history.Open(ctx, cfg.HistoryOptions())
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.History.Backend).Msg("Failed to open history store")
	}
	return store
}

// HistoryResource describes where history lives, for the startup event.
func HistoryResource(cfg *config.Config, store history.Store) string {
	switch s := store.(type) {
	case *history.SQLiteStore:
		return s.Path()
	case *history.DynamoStore:
		return "dynamodb:" + cfg.History.DynamoTable
	default:
		return cfg.History.Backend
	}
}

// StartupLog emits the single startup event for a binary.
func StartupLog(name, version string, cfg *config.Config, store history.Store, started time.Time) {
	opts := cfg.AnalysisOptions()
	_, gpgErr := exec.LookPath("gpg")
	logging.NewStartupLogger(name).
		Version(version).
		Resource("history", HistoryResource(cfg, store)).
		Feature("ffprobe", media.IsFFprobeAvailable()).
		Feature("gpg", gpgErr == nil).
		Feature("emf", cfg.Metrics.EMF).
		Feature("probeDuration", opts.ProbeDuration).
		Config("model", opts.Model).
		Config("inlineThreshold", strconv.FormatInt(opts.InlineThreshold, 10)).
		Config("pollInterval", opts.PollInterval.String()).
		Config("maxPollAttempts", strconv.Itoa(opts.MaxPollAttempts)).
		Config("logFormat", cfg.Log.Format).
		InitDuration(time.Since(started)).
		Log()
}
