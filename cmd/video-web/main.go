package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/video-insight/internal/boot"
	"github.com/fpang/video-insight/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	configFlag   string
	portFlag     int
	modelFlag    string
	validateFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "video-web",
	Short: "Local web API for video analysis",
	Long: `Video Web starts a local HTTP API used by the browser front-end: upload a
video, follow the job's progress, cancel it, read the report and ask
follow-up questions. Prometheus metrics are served on /metrics.

Examples:
  video-web
  video-web --port 9090
  video-web --model gemini-2.5-pro --config ./config.yaml`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to config.yaml (default ~/.video-insight/config.yaml)")
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config and PORT)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (overrides config and GEMINI_MODEL)")
	rootCmd.Flags().BoolVar(&validateFlag, "validate-key", true, "Check the API key at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	started := time.Now()
	cfg := boot.Init(configFlag, "video-web", os.Stdout)
	if modelFlag != "" {
		cfg.Gemini.Model = modelFlag
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	baseCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	analyzer := boot.InitAnalyzer(baseCtx, cfg, validateFlag)
	store := boot.InitHistory(baseCtx, cfg)
	defer store.Close()

	metrics.MustRegister()

	srv := newServer(baseCtx, analyzer, store, cfg.Server.MaxUploadSize)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.routes(),
		// Uploads can take minutes, so only the headers have a deadline.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")

		stopJobs()
		srv.shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
	}()

	boot.StartupLog("video-web", version, cfg, store, started)
	log.Info().Int("port", cfg.Server.Port).Msg("Starting web server")
	fmt.Printf("\n  Video Insight API: http://localhost:%d\n\n", cfg.Server.Port)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-shutdownDone
}
