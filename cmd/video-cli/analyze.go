package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/boot"
	"github.com/fpang/video-insight/internal/cli"
	"github.com/fpang/video-insight/internal/config"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	fileFlag   string
	modeFlag   string
	jsonFlag   bool
	noSaveFlag bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a video and print the report",
	Long: `Analyze uploads a video (inline when it is 20 MiB or smaller) and prints
the report. Progress goes to stderr; the report goes to stdout.

Press Ctrl-C to cancel. The command then exits with status 130.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Video file to analyze")
	analyzeCmd.Flags().StringVar(&modeFlag, "mode", string(analysis.ModeFast), "Analysis mode: fast or deep")
	analyzeCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")
	analyzeCmd.Flags().BoolVar(&noSaveFlag, "no-save", false, "Do not save the result to history")
}

func loadConfig() *config.Config {
	cfg := boot.Init(configFlag, "video-cli", os.Stderr)
	if modelFlag != "" {
		cfg.Gemini.Model = modelFlag
	}
	return cfg
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	mode, err := analysis.ParseMode(modeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --mode")
	}

	path := fileFlag
	if path == "" && len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = chooseFile()
	}
	path, err = cli.ResolveVideoPath(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid video file")
	}
	src, err := media.LoadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load video")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer := boot.InitAnalyzer(ctx, cfg, validateFlag)

	var store history.Store
	if !noSaveFlag {
		store = boot.InitHistory(ctx, cfg)
		defer store.Close()
	}

	entry, err := analyzeVideo(ctx, analyzer, store, src, mode, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, analysis.UserMessage(err))
		if analysis.IsCancelled(err) {
			stop()
			if store != nil {
				store.Close()
			}
			os.Exit(exitCancelled)
		}
		log.Fatal().Err(err).Str("kind", analysis.KindOf(err).String()).Msg("Analysis failed")
	}

	if err := printEntry(os.Stdout, entry, jsonFlag, store != nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to print result")
	}
}

// chooseFile opens the native picker, falling back to a terminal prompt when
// no dialog can be shown.
func chooseFile() string {
	path, err := cli.PickVideoFile()
	if errors.Is(err, cli.ErrPickCanceled) {
		fmt.Fprintln(os.Stderr, "未选择文件")
		os.Exit(1)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Native dialog unavailable, prompting on terminal")
		path, err = cli.PromptForVideoPath(os.Stdin, os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read file path")
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "未选择文件")
		os.Exit(1)
	}
	return path
}

// analyzeVideo runs one analysis, printing progress lines to progressOut, and
// saves the result when store is non-nil.
func analyzeVideo(ctx context.Context, a *analysis.Analyzer, store history.Store, src media.Source, mode analysis.Mode, progressOut io.Writer) (*history.Entry, error) {
	start := time.Now()
	fmt.Fprintf(progressOut, "%s: %s\n", mode.Label(), src.Name())

	result, err := a.Run(ctx, src, mode, func(p analysis.Progress) {
		fmt.Fprintln(progressOut, cli.FormatProgress(p, time.Since(start)))
	})
	if err != nil {
		return nil, err
	}

	entry := history.NewEntry(src.Name(), result)
	if store != nil {
		// The analysis itself succeeded; a save failure only loses history.
		if err := store.Save(context.WithoutCancel(ctx), entry); err != nil {
			log.Error().Err(err).Str("file", src.Name()).Msg("Failed to save analysis to history")
			fmt.Fprintln(progressOut, "警告：保存历史记录失败")
			entry.ID = ""
		}
	}
	return entry, nil
}

func printEntry(w io.Writer, entry *history.Entry, asJSON, saved bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if saved && entry.ID != "" {
			return enc.Encode(entry)
		}
		return enc.Encode(entry.Result)
	}

	cli.RenderResult(w, entry.Result)
	if saved && entry.ID != "" {
		fmt.Fprintf(w, "\n历史记录 ID: %s\n", entry.ID)
		fmt.Fprintf(w, "继续提问: video-cli chat %s \"你的问题\"\n", entry.ID)
	}
	return nil
}
