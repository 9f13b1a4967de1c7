package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/history"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatProgress renders one progress line, e.g. "[ 30%] 视频处理中 (0:12)".
func FormatProgress(p analysis.Progress, elapsed time.Duration) string {
	return fmt.Sprintf("[%3d%%] %s (%s)", p.Percent, p.Stage.Label(), FormatDurationShort(elapsed))
}

// RenderResult writes a human-readable report of r.
func RenderResult(w io.Writer, r *analysis.Result) {
	fmt.Fprintf(w, "== %s ==\n\n", r.Mode.Label())

	fmt.Fprintln(w, "摘要")
	fmt.Fprintf(w, "  %s\n", r.Summary)

	if len(r.KeyTakeaways) > 0 {
		fmt.Fprintln(w, "\n核心要点")
		for i, k := range r.KeyTakeaways {
			fmt.Fprintf(w, "  %d. %s\n", i+1, k.Point)
			fmt.Fprintf(w, "     %s\n", k.Detail)
		}
	}

	if len(r.Timestamps) > 0 {
		fmt.Fprintln(w, "\n时间轴")
		for _, ts := range r.Timestamps {
			fmt.Fprintf(w, "  %s  %s\n", ts.Time, ts.Description)
		}
	}

	if len(r.ActionItems) > 0 {
		fmt.Fprintln(w, "\n行动建议")
		for _, item := range r.ActionItems {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}

	if r.MindMapMermaid != "" {
		fmt.Fprintln(w, "\n思维导图 (Mermaid)")
		fmt.Fprintln(w, "```mermaid")
		fmt.Fprintln(w, r.MindMapMermaid)
		fmt.Fprintln(w, "```")
	}
}

// RenderTranscript writes chat turns, one per paragraph.
func RenderTranscript(w io.Writer, turns []analysis.Turn) {
	for _, t := range turns {
		fmt.Fprintf(w, "%s：%s\n\n", t.Role.Speaker(), t.Text)
	}
}

// RenderHistoryList writes one line per entry, newest first as given.
func RenderHistoryList(w io.Writer, entries []*history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "暂无历史记录")
		return
	}
	for _, e := range entries {
		summary := ""
		if e.Result != nil {
			summary = truncateRunes(e.Result.Summary, 40)
		}
		fmt.Fprintf(w, "%s  %s  %-4s  %s  %s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.Mode,
			e.FileName,
			summary,
		)
	}
}

func truncateRunes(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
