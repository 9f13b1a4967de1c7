package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// ffprobeOutput is the subset of ffprobe's JSON we read.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe describes a video as reported by ffprobe.
type Probe struct {
	Duration time.Duration
	Width    int
	Height   int
}

// IsFFprobeAvailable returns true if ffprobe is available in the system PATH.
func IsFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// ProbeFile runs ffprobe on a local video. Callers treat failure as "no hint"
// since ffprobe is optional.
func ProbeFile(ctx context.Context, filePath string) (*Probe, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	probe, err := parseProbe(output)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("path", filePath).
		Dur("duration", probe.Duration).
		Int("width", probe.Width).
		Int("height", probe.Height).
		Msg("Video probed via ffprobe")
	return probe, nil
}

func parseProbe(output []byte) (*Probe, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	p := &Probe{}
	if raw.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			p.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	for _, s := range raw.Streams {
		if s.CodecType == "video" && p.Width == 0 {
			p.Width, p.Height = s.Width, s.Height
		}
	}
	return p, nil
}

// FormatClock renders whole seconds as zero-padded MM:SS. Minutes are not
// wrapped into hours, so 3725 seconds is "62:05".
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
