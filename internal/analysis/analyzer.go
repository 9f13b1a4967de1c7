package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fpang/video-insight/internal/cancel"
	"github.com/fpang/video-insight/internal/gemini"
	"github.com/fpang/video-insight/internal/media"
	"github.com/fpang/video-insight/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Default tunables.
const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxPollAttempts = 240
)

// Options tunes an Analyzer. Zero values take the defaults.
type Options struct {
	// Model overrides the Gemini model; empty uses gemini.GetModelName().
	Model string
	// InlineThreshold is the largest size sent inline. Larger files are uploaded.
	InlineThreshold int64
	// MaxFileSize rejects bigger files before any network call. Zero disables the check.
	MaxFileSize int64
	// PollInterval is the wait before each status check.
	PollInterval time.Duration
	// MaxPollAttempts bounds the status checks before a KindTimeout error.
	MaxPollAttempts int
	// ProbeDuration runs ffprobe on local files in deep mode to give the model
	// the video length.
	ProbeDuration bool
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = gemini.GetModelName()
	}
	if o.InlineThreshold <= 0 {
		o.InlineThreshold = media.InlineThreshold
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = DefaultMaxPollAttempts
	}
	return o
}

// Analyzer runs analysis jobs against a Transport. It holds no per-job state
// and is safe for concurrent use.
type Analyzer struct {
	transport Transport
	opts      Options
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(t Transport, opts Options) *Analyzer {
	return &Analyzer{transport: t, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// runStats is collected for metrics whether or not the run succeeds.
type runStats struct {
	uploadBytes  int64
	pollAttempts int
}

// Run analyses src in the given mode.
//
// Progress is reported through onProgress (which may be nil) in forward stage
// order with non-decreasing percentages; 100 is only reported after the
// response has been sanitized. Pipeline failures are returned as *Error.
//
// Cancelling ctx settles Run with a KindCancelled error at the next
// suspension point. The remote service is not told: an upload in flight may
// still complete and an uploaded file keeps being processed.
func (a *Analyzer) Run(ctx context.Context, src media.Source, mode Mode, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	var stats runStats

	result, err := a.run(ctx, src, mode, newProgressReporter(onProgress), &stats)

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.ObserveAnalysis(metrics.Analysis{
		Mode:         string(mode),
		Outcome:      outcome,
		Duration:     time.Since(start),
		PollAttempts: stats.pollAttempts,
		UploadBytes:  stats.uploadBytes,
	})

	evt := log.Info()
	if err != nil && !IsCancelled(err) {
		evt = log.Error().Err(err)
	}
	evt.Str("file", src.Name()).
		Str("mode", string(mode)).
		Str("outcome", outcome).
		Int("poll_attempts", stats.pollAttempts).
		Dur("duration", time.Since(start)).
		Msg("Analysis finished")

	return result, err
}

func (a *Analyzer) run(ctx context.Context, src media.Source, mode Mode, progress *progressReporter, stats *runStats) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown analysis mode %q", mode)
	}
	if cancel.Check(ctx) != nil {
		return nil, errCancelled()
	}
	if a.opts.MaxFileSize > 0 && src.Size() > a.opts.MaxFileSize {
		return nil, newError(KindUpload, nil, "视频文件过大（%s），上限为 %s",
			formatBytes(src.Size()), formatBytes(a.opts.MaxFileSize))
	}

	ref, err := a.resolveMedia(ctx, src, progress, stats)
	if err != nil {
		return nil, err
	}

	progress.report(StageGenerating, percentMediaReady)
	prompt, err := BuildPrompt(mode, a.probeDuration(ctx, src, mode))
	if err != nil {
		return nil, err
	}

	if cancel.Check(ctx) != nil {
		return nil, errCancelled()
	}
	progress.report(StageGenerating, percentRequestSent)

	budget := prompt.ThinkingBudget
	req := gemini.Request{
		Model:             a.opts.Model,
		SystemInstruction: prompt.SystemInstruction,
		Parts:             []*genai.Part{ref.Part(), {Text: prompt.Instruction}},
		Schema:            prompt.Schema,
		ThinkingBudget:    &budget,
	}
	text, err := cancel.Do(ctx, func(ctx context.Context) (string, error) {
		return a.transport.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			return nil, errCancelled()
		}
		return nil, newError(KindGeneration, err, "generate analysis")
	}
	progress.report(StageGenerating, percentResponse)

	result, err := Sanitize(text, mode)
	if err != nil {
		return nil, err
	}
	result.retain(ref)
	progress.report(StageGenerating, percentComplete)
	return result, nil
}

// resolveMedia produces the media reference for src: inline bytes for small
// files, an uploaded and ACTIVE Files API handle otherwise.
func (a *Analyzer) resolveMedia(ctx context.Context, src media.Source, progress *progressReporter, stats *runStats) (media.Reference, error) {
	progress.report(StageUploading, percentUploadStart)

	if src.Size() <= a.opts.InlineThreshold {
		data, err := cancel.Do(ctx, func(context.Context) ([]byte, error) {
			return readAll(src)
		})
		if err != nil {
			if errors.Is(err, cancel.ErrCancelled) {
				return nil, errCancelled()
			}
			return nil, newError(KindUpload, err, "read video")
		}
		log.Debug().Str("file", src.Name()).Int("size_bytes", len(data)).Msg("Sending video inline")
		progress.report(StageUploading, percentUploaded)
		return media.Inline{Data: data, MIMEType: src.MIMEType()}, nil
	}

	file, err := cancel.Do(ctx, func(ctx context.Context) (*genai.File, error) {
		rc, err := src.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return a.transport.Upload(ctx, rc, src.Name(), src.MIMEType())
	})
	if err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			return nil, errCancelled()
		}
		return nil, newError(KindUpload, err, "upload video")
	}
	if file == nil {
		return nil, newError(KindUpload, nil, "上传后未返回文件信息")
	}
	stats.uploadBytes = src.Size()
	progress.report(StageUploading, percentUploaded)

	ref := media.Remote{Name: file.Name, URI: file.URI, MIMEType: src.MIMEType()}
	if file.MIMEType != "" {
		ref.MIMEType = file.MIMEType
	}

	switch file.State {
	case genai.FileStateActive:
		return ref, nil
	case genai.FileStateFailed:
		return nil, newError(KindUpload, nil, "远端视频处理失败（%s）", file.Name)
	}

	if err := a.waitForActive(ctx, file.Name, progress, stats); err != nil {
		return nil, err
	}
	return ref, nil
}

// waitForActive polls the file state until it is ACTIVE, FAILED, the attempt
// budget runs out, or ctx is cancelled. A failed status check only costs an
// attempt.
func (a *Analyzer) waitForActive(ctx context.Context, name string, progress *progressReporter, stats *runStats) error {
	progress.report(StageAnalyzing, percentUploaded)
	log.Info().Str("file_name", name).Msg("Waiting for video processing")

	for attempt := 1; attempt <= a.opts.MaxPollAttempts; attempt++ {
		if err := cancel.Sleep(ctx, a.opts.PollInterval); err != nil {
			return errCancelled()
		}

		stats.pollAttempts = attempt
		state, err := cancel.Do(ctx, func(ctx context.Context) (genai.FileState, error) {
			return a.transport.Status(ctx, name)
		})
		progress.report(StageAnalyzing, pollPercent(attempt))

		if err != nil {
			if errors.Is(err, cancel.ErrCancelled) {
				return errCancelled()
			}
			log.Warn().Err(err).Str("file_name", name).Int("attempt", attempt).Msg("File status check failed, retrying")
			continue
		}

		log.Debug().Str("file_name", name).Str("state", string(state)).Int("attempt", attempt).Msg("Polled file state")
		switch state {
		case genai.FileStateActive:
			log.Info().Str("file_name", name).Int("attempts", attempt).Msg("Video processing complete")
			return nil
		case genai.FileStateFailed:
			return newError(KindUpload, nil, "远端视频处理失败（%s）", name)
		}
	}

	return newError(KindTimeout, nil, "file %s still processing after %d status checks", name, a.opts.MaxPollAttempts)
}

// probeDuration returns the video length for the deep prompt, or 0.
func (a *Analyzer) probeDuration(ctx context.Context, src media.Source, mode Mode) time.Duration {
	if mode != ModeDeep || !a.opts.ProbeDuration {
		return 0
	}
	f, ok := src.(*media.File)
	if !ok || !media.IsFFprobeAvailable() {
		return 0
	}
	p, err := media.ProbeFile(ctx, f.Path)
	if err != nil {
		log.Debug().Err(err).Str("path", f.Path).Msg("ffprobe failed, continuing without duration")
		return 0
	}
	return p.Duration
}

func readAll(src media.Source) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= 1024*mib {
		return fmt.Sprintf("%.1f GiB", float64(n)/(1024*mib))
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/mib)
}
