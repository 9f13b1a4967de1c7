package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/boot"
	"github.com/fpang/video-insight/internal/cli"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var chatFileFlag string

var chatCmd = &cobra.Command{
	Use:   "chat <history-id> <question...>",
	Short: "Ask a follow-up question about an analyzed video",
	Long: `Chat asks Gemini a follow-up question about a video from the history,
together with the earlier questions and answers. Answers are in Chinese.

Uploaded videos are referenced by their Files API handle. Small videos that
were sent inline must be given again with --file.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatFileFlag, "file", "f", "", "Video file, required when the video was sent inline")
}

func runChat(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := boot.InitHistory(ctx, cfg)
	defer store.Close()

	var src media.Source
	if chatFileFlag != "" {
		path, err := cli.ResolveVideoPath(chatFileFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid video file")
		}
		if src, err = media.LoadFile(path); err != nil {
			log.Fatal().Err(err).Msg("Failed to load video")
		}
	}

	analyzer := boot.InitAnalyzer(ctx, cfg, validateFlag)
	reply, ok, err := askFollowUp(ctx, analyzer, store, args[0], strings.Join(args[1:], " "), src)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "找不到历史记录 %s\n", args[0])
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Chat failed")
	}

	fmt.Fprintln(os.Stdout, reply)
	if !ok {
		os.Exit(1)
	}
}

// errNeedsVideo is returned when an entry has no uploaded handle and no
// source was given.
var errNeedsVideo = errors.New("video was sent inline; pass it again with --file")

// askFollowUp answers question about the history entry id. Successful
// exchanges are appended to the entry's chat; degraded replies are shown but
// not saved.
func askFollowUp(ctx context.Context, a *analysis.Analyzer, store history.Store, id, question string, src media.Source) (string, bool, error) {
	entry, err := store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}

	req := analysis.ChatRequest{
		History: entry.Chat,
		Message: question,
		Source:  src,
	}
	if remote, ok := entry.Result.RemoteReference(); ok {
		req.Remote = &remote
	} else if src == nil {
		return "", false, errNeedsVideo
	}

	reply, ok := a.Chat(ctx, req)
	if !ok {
		return reply, false, nil
	}

	err = store.AppendChat(context.WithoutCancel(ctx), id,
		analysis.Turn{Role: analysis.RoleUser, Text: strings.TrimSpace(question)},
		analysis.Turn{Role: analysis.RoleAssistant, Text: reply},
	)
	if err != nil {
		log.Error().Err(err).Str("history_id", id).Msg("Failed to save chat turn")
	}
	return reply, true, nil
}

// printTranscript is used by "history show".
func printTranscript(w io.Writer, entry *history.Entry) {
	if len(entry.Chat) == 0 {
		return
	}
	fmt.Fprintln(w, "\n追问记录")
	cli.RenderTranscript(w, entry.Chat)
}
