package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptForVideoPath asks for a video path on w and reads one line from r.
// It returns an empty string when nothing was entered.
func PromptForVideoPath(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "视频文件路径: ")

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}

	input = strings.TrimSpace(input)
	// Drag-and-drop into a terminal quotes paths with spaces.
	input = strings.Trim(input, `"'`)
	return input, nil
}
