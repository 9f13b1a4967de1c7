package cli

import (
	"errors"
	"sort"

	"github.com/fpang/video-insight/internal/media"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrPickCanceled is returned when the user closes the file dialog.
var ErrPickCanceled = errors.New("file selection canceled")

// PickVideoFile opens a native file dialog filtered to supported videos.
func PickVideoFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("选择要分析的视频"),
		zenity.FileFilters{
			{Name: "视频文件", Patterns: videoPatterns(), CaseFold: true},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", err
	}
	log.Info().Str("path", selected).Msg("Video picked via native dialog")
	return selected, nil
}

// videoPatterns returns glob patterns for every supported extension, sorted.
func videoPatterns() []string {
	patterns := make([]string, 0, len(media.SupportedVideoExtensions))
	for ext := range media.SupportedVideoExtensions {
		patterns = append(patterns, "*"+ext)
	}
	sort.Strings(patterns)
	return patterns
}
