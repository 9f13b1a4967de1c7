package analysis

import (
	"context"
	"io"

	"github.com/fpang/video-insight/internal/gemini"
	"google.golang.org/genai"
)

// Transport is the subset of the Gemini API the pipeline drives.
//
// Implementations should honour ctx, but the pipeline does not rely on it:
// every call is wrapped so that cancellation settles the job immediately even
// if the remote call keeps running.
type Transport interface {
	// Upload registers a file and returns its handle. The returned state may
	// already be ACTIVE.
	Upload(ctx context.Context, r io.Reader, displayName, mimeType string) (*genai.File, error)
	// Status returns the latest processing state of an uploaded file.
	Status(ctx context.Context, name string) (genai.FileState, error)
	// Generate runs one generation request and returns its raw text.
	Generate(ctx context.Context, req gemini.Request) (string, error)
}

var _ Transport = (*gemini.Client)(nil)
