package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Persistent flags
var (
	configFlag   string
	modelFlag    string
	validateFlag bool
)

// exitCancelled is the conventional status for a run stopped with Ctrl-C.
const exitCancelled = 130

var rootCmd = &cobra.Command{
	Use:   "video-cli",
	Short: "AI video summaries, mind maps and follow-up chat",
	Long: `Video CLI sends a video to Gemini and prints a structured report in
Chinese: a summary, key takeaways and action items, plus a timeline and a
Mermaid mind map in deep mode. Reports are saved to the local history so you
can ask follow-up questions later.

Examples:
  video-cli analyze --file talk.mp4
  video-cli analyze talk.mp4 --mode deep
  video-cli analyze            # choose the file in a dialog
  video-cli history list
  video-cli chat <history-id> "第二部分讲了什么？"`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config.yaml (default ~/.video-insight/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (overrides config and GEMINI_MODEL)")
	rootCmd.PersistentFlags().BoolVar(&validateFlag, "validate-key", false, "Check the API key with a minimal request before running")

	rootCmd.AddCommand(analyzeCmd, chatCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
