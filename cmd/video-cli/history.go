package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fpang/video-insight/internal/boot"
	"github.com/fpang/video-insight/internal/cli"
	"github.com/fpang/video-insight/internal/history"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show or delete saved analyses",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved analyses, newest first",
	Args:  cobra.NoArgs,
	Run: withStore(func(ctx context.Context, store history.Store, args []string) error {
		entries, err := store.List(ctx, historyLimitFlag)
		if err != nil {
			return err
		}
		cli.RenderHistoryList(os.Stdout, entries)
		return nil
	}),
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved report and its follow-up chat",
	Args:  cobra.ExactArgs(1),
	Run: withStore(func(ctx context.Context, store history.Store, args []string) error {
		return showEntry(ctx, os.Stdout, store, args[0], jsonFlag)
	}),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved analysis",
	Args:  cobra.ExactArgs(1),
	Run: withStore(func(ctx context.Context, store history.Store, args []string) error {
		if err := store.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "已删除 %s\n", args[0])
		return nil
	}),
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Maximum entries to list (0 = all)")
	historyShowCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the entry as JSON")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
}

// withStore opens the history store around fn and maps its errors to exits.
func withStore(fn func(ctx context.Context, store history.Store, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store := boot.InitHistory(ctx, cfg)
		err := fn(ctx, store, args)
		store.Close()

		switch {
		case err == nil:
		case errors.Is(err, history.ErrNotFound):
			fmt.Fprintln(os.Stderr, "找不到该历史记录")
			os.Exit(1)
		default:
			log.Fatal().Err(err).Msg("History command failed")
		}
	}
}

func showEntry(ctx context.Context, w io.Writer, store history.Store, id string, asJSON bool) error {
	entry, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}

	fmt.Fprintf(w, "%s  %s\n\n", entry.FileName, entry.CreatedAt.Local().Format("2006-01-02 15:04"))
	cli.RenderResult(w, entry.Result)
	printTranscript(w, entry)
	return nil
}
