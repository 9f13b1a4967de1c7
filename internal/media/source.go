// Package media handles the video a job analyses: where its bytes come from,
// what type it is, and how it is referenced in a generation request.
package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// InlineThreshold is the largest file sent inline with the generation request.
// Anything bigger goes through the Files API first.
const InlineThreshold int64 = 20 * 1024 * 1024

// MaxFileSize is the Files API per-file ceiling.
const MaxFileSize int64 = 2 * 1024 * 1024 * 1024

// SupportedVideoExtensions defines the file extensions accepted for analysis.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
}

// Source is a video to analyse. Open may be called more than once.
type Source interface {
	Name() string
	MIMEType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// File is a video on local disk.
type File struct {
	Path      string
	MediaType string
	Bytes     int64
	// DisplayName replaces the base of Path as Name, e.g. for a spooled upload.
	DisplayName string
}

var _ Source = (*File)(nil)

// LoadFile stats a video on disk and resolves its MIME type from the extension.
// The file content is not read here.
func LoadFile(filePath string) (*File, error) {
	log.Debug().Str("path", filePath).Msg("Loading video file")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	mimeType, err := GetMIMEType(filepath.Ext(filePath))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", filePath).
		Str("mime_type", mimeType).
		Int64("size_bytes", info.Size()).
		Msg("Video file loaded")

	return &File{Path: filePath, MediaType: mimeType, Bytes: info.Size()}, nil
}

// Name returns DisplayName when set, otherwise the base file name.
func (f *File) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return filepath.Base(f.Path)
}

// MIMEType returns the resolved media type.
func (f *File) MIMEType() string { return f.MediaType }

// Size returns the file size in bytes.
func (f *File) Size() int64 { return f.Bytes }

// Open opens the file for reading.
func (f *File) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

// Buffer is a video already held in memory, e.g. a browser upload.
type Buffer struct {
	FileName  string
	MediaType string
	Data      []byte
}

var _ Source = (*Buffer)(nil)

// Name returns the original file name.
func (b *Buffer) Name() string { return b.FileName }

// MIMEType returns the media type.
func (b *Buffer) MIMEType() string { return b.MediaType }

// Size returns len(Data).
func (b *Buffer) Size() int64 { return int64(len(b.Data)) }

// Open returns a reader over Data.
func (b *Buffer) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedVideoExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// IsVideo returns true if the file extension corresponds to a supported video.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}

// ResolveMIMEType picks the declared type when it is a video type, otherwise
// falls back to the file name's extension.
func ResolveMIMEType(declared, fileName string) (string, error) {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "video/") {
		return declared, nil
	}
	return GetMIMEType(filepath.Ext(fileName))
}
