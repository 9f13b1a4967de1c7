package analysis

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fpang/video-insight/internal/gemini"
	"github.com/fpang/video-insight/internal/media"
	"google.golang.org/genai"
)

const fastResponse = `{"summary": "s", "keyTakeaways": [{"point": "p", "detail": "d"}], "actionItems": ["a"]}`

// fakeTransport records calls and answers from canned values.
type fakeTransport struct {
	mu sync.Mutex

	uploadState genai.FileState
	uploadErr   error
	// status answers the n-th status check (1-based). Nil means always ACTIVE.
	status func(n int) (genai.FileState, error)

	text        string
	generateErr error
	// block, when set, makes Generate wait until it is closed.
	block chan struct{}

	uploads   int
	uploaded  []byte
	statuses  int
	generates int
	lastReq   gemini.Request
}

func (f *fakeTransport) Upload(_ context.Context, r io.Reader, displayName, mimeType string) (*genai.File, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	f.uploaded = data
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	state := f.uploadState
	if state == "" {
		state = genai.FileStateProcessing
	}
	return &genai.File{
		Name:     "files/abc",
		URI:      "https://generativelanguage.googleapis.com/v1beta/files/abc",
		MIMEType: mimeType,
		State:    state,
	}, nil
}

func (f *fakeTransport) Status(_ context.Context, _ string) (genai.FileState, error) {
	f.mu.Lock()
	f.statuses++
	n := f.statuses
	fn := f.status
	f.mu.Unlock()
	if fn == nil {
		return genai.FileStateActive, nil
	}
	return fn(n)
}

func (f *fakeTransport) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.mu.Lock()
	f.generates++
	f.lastReq = req
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.text, f.generateErr
}

func (f *fakeTransport) counts() (uploads, statuses, generates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.statuses, f.generates
}

func video(size int) *media.Buffer {
	return &media.Buffer{FileName: "talk.mp4", MediaType: "video/mp4", Data: make([]byte, size)}
}

// progressLog collects progress events.
type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (p *progressLog) record(ev Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressLog) snapshot() []Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Progress(nil), p.events...)
}

func assertForwardProgress(t *testing.T, events []Progress) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.Percent < prev.Percent {
			t.Errorf("percent went backwards at %d: %v -> %v", i, prev, cur)
		}
		if cur.Stage.rank() < prev.Stage.rank() {
			t.Errorf("stage went backwards at %d: %v -> %v", i, prev, cur)
		}
	}
	if last := events[len(events)-1]; last.Percent != 100 {
		t.Errorf("last progress = %v, want 100", last)
	}
}

func TestRun_InlineNeverUploads(t *testing.T) {
	const threshold = 64
	for _, size := range []int{1, threshold - 1, threshold} {
		ft := &fakeTransport{text: fastResponse}
		a := NewAnalyzer(ft, Options{InlineThreshold: threshold, PollInterval: time.Millisecond})

		res, err := a.Run(context.Background(), video(size), ModeFast, nil)
		if err != nil {
			t.Fatalf("size %d: Run() error = %v", size, err)
		}
		uploads, statuses, generates := ft.counts()
		if uploads != 0 || statuses != 0 || generates != 1 {
			t.Errorf("size %d: uploads=%d statuses=%d generates=%d, want 0/0/1", size, uploads, statuses, generates)
		}
		part := ft.lastReq.Parts[0]
		if part.InlineData == nil || len(part.InlineData.Data) != size || part.InlineData.MIMEType != "video/mp4" {
			t.Errorf("size %d: first part is not the inline video: %+v", size, part)
		}
		if res.FileURI != "" {
			t.Errorf("size %d: inline result retained FileURI %q", size, res.FileURI)
		}
	}
}

func TestRun_AboveThresholdAlwaysUploads(t *testing.T) {
	const threshold = 64
	for _, size := range []int{threshold + 1, threshold * 10} {
		ft := &fakeTransport{text: fastResponse}
		a := NewAnalyzer(ft, Options{InlineThreshold: threshold, PollInterval: time.Millisecond})

		res, err := a.Run(context.Background(), video(size), ModeFast, nil)
		if err != nil {
			t.Fatalf("size %d: Run() error = %v", size, err)
		}
		uploads, _, _ := ft.counts()
		if uploads != 1 || len(ft.uploaded) != size {
			t.Errorf("size %d: uploads=%d uploaded=%d bytes", size, uploads, len(ft.uploaded))
		}
		part := ft.lastReq.Parts[0]
		if part.FileData == nil || part.FileData.FileURI == "" || part.InlineData != nil {
			t.Errorf("size %d: first part is not a file reference: %+v", size, part)
		}
		if res.FileURI != part.FileData.FileURI || res.FileMIMEType != "video/mp4" {
			t.Errorf("size %d: result did not retain the upload: %+v", size, res)
		}
	}
}

func TestRun_ProgressInline(t *testing.T) {
	ft := &fakeTransport{text: fastResponse}
	a := NewAnalyzer(ft, Options{})
	var log progressLog

	if _, err := a.Run(context.Background(), video(16), ModeFast, log.record); err != nil {
		t.Fatal(err)
	}

	want := []Progress{
		{StageUploading, 10},
		{StageUploading, 30},
		{StageGenerating, 85},
		{StageGenerating, 90},
		{StageGenerating, 98},
		{StageGenerating, 100},
	}
	got := log.snapshot()
	assertForwardProgress(t, got)
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRun_ProgressThroughPolling(t *testing.T) {
	ft := &fakeTransport{
		text: deepResponse,
		status: func(n int) (genai.FileState, error) {
			if n < 40 {
				return genai.FileStateProcessing, nil
			}
			return genai.FileStateActive, nil
		},
	}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8, PollInterval: time.Millisecond})
	var log progressLog

	res, err := a.Run(context.Background(), video(100), ModeDeep, log.record)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.MindMapMermaid == "" || len(res.Timestamps) != 1 {
		t.Errorf("deep fields missing: %+v", res)
	}

	events := log.snapshot()
	assertForwardProgress(t, events)

	sawAnalyzing := false
	for _, ev := range events {
		if ev.Stage == StageAnalyzing {
			sawAnalyzing = true
			if ev.Percent < 30 || ev.Percent > 80 {
				t.Errorf("analyzing progress %d outside [30, 80]", ev.Percent)
			}
		}
	}
	if !sawAnalyzing {
		t.Error("no analyzing stage reported for an uploaded video")
	}
	if _, statuses, _ := ft.counts(); statuses != 40 {
		t.Errorf("statuses = %d, want 40", statuses)
	}
}

func TestRun_UploadAlreadyActiveSkipsPolling(t *testing.T) {
	ft := &fakeTransport{text: fastResponse, uploadState: genai.FileStateActive}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8})

	if _, err := a.Run(context.Background(), video(100), ModeFast, nil); err != nil {
		t.Fatal(err)
	}
	if _, statuses, _ := ft.counts(); statuses != 0 {
		t.Errorf("statuses = %d, want 0", statuses)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ft := &fakeTransport{text: fastResponse}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8})
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	var log progressLog

	for _, size := range []int{4, 100} {
		_, err := a.Run(ctx, video(size), ModeDeep, log.record)
		if !IsCancelled(err) {
			t.Fatalf("size %d: Run() error = %v, want cancelled", size, err)
		}
	}
	if u, s, g := ft.counts(); u+s+g != 0 {
		t.Errorf("transport was called after cancellation: uploads=%d statuses=%d generates=%d", u, s, g)
	}
	if ev := log.snapshot(); len(ev) != 0 {
		t.Errorf("progress reported for a cancelled job: %v", ev)
	}
}

func TestRun_CancelDuringPolling(t *testing.T) {
	const interval = 50 * time.Millisecond
	ft := &fakeTransport{
		text: fastResponse,
		status: func(int) (genai.FileState, error) {
			return genai.FileStateProcessing, nil
		},
	}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8, PollInterval: interval})
	ctx, cancelFn := context.WithCancel(context.Background())

	var cancelledAt time.Time
	go func() {
		time.Sleep(3*interval + interval/2)
		cancelledAt = time.Now()
		cancelFn()
	}()

	_, err := a.Run(ctx, video(100), ModeFast, nil)
	settled := time.Now()

	if !IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}
	if lag := settled.Sub(cancelledAt); lag > interval {
		t.Errorf("settled %v after cancel, want within one poll interval (%v)", lag, interval)
	}
	if _, _, g := ft.counts(); g != 0 {
		t.Error("generation ran after cancellation")
	}
}

func TestRun_CancelDuringGeneration(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ft := &fakeTransport{text: fastResponse, block: block}
	a := NewAnalyzer(ft, Options{})
	ctx, cancelFn := context.WithCancel(context.Background())
	var log progressLog

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancelFn()
	}()

	_, err := a.Run(ctx, video(4), ModeFast, log.record)
	if !IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}
	for _, ev := range log.snapshot() {
		if ev.Percent == 100 {
			t.Error("100% reported for a cancelled job")
		}
	}
}

func TestRun_TimeoutAfterMaxAttempts(t *testing.T) {
	ft := &fakeTransport{
		text: fastResponse,
		status: func(int) (genai.FileState, error) {
			return genai.FileStateProcessing, nil
		},
	}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8, PollInterval: time.Microsecond, MaxPollAttempts: 240})

	_, err := a.Run(context.Background(), video(100), ModeFast, nil)
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("KindOf(err) = %v, want timeout (err = %v)", got, err)
	}
	if _, statuses, generates := ft.counts(); statuses != 240 || generates != 0 {
		t.Errorf("statuses=%d generates=%d, want 240/0", statuses, generates)
	}
}

func TestRun_TransientStatusErrorsAreRetried(t *testing.T) {
	ft := &fakeTransport{
		text: fastResponse,
		status: func(n int) (genai.FileState, error) {
			if n <= 3 {
				return genai.FileStateUnspecified, errors.New("503 service unavailable")
			}
			return genai.FileStateActive, nil
		},
	}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8, PollInterval: time.Millisecond})

	if _, err := a.Run(context.Background(), video(100), ModeFast, nil); err != nil {
		t.Fatalf("Run() error = %v, want success after transient errors", err)
	}
	if _, statuses, _ := ft.counts(); statuses != 4 {
		t.Errorf("statuses = %d, want 4", statuses)
	}
}

func TestRun_TransientErrorsStillBoundedByMaxAttempts(t *testing.T) {
	ft := &fakeTransport{
		status: func(int) (genai.FileState, error) {
			return genai.FileStateUnspecified, errors.New("network down")
		},
	}
	a := NewAnalyzer(ft, Options{InlineThreshold: 8, PollInterval: time.Microsecond, MaxPollAttempts: 5})

	_, err := a.Run(context.Background(), video(100), ModeFast, nil)
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("KindOf(err) = %v, want timeout", got)
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name string
		ft   *fakeTransport
		opts Options
		size int
		want ErrorKind
	}{
		{
			name: "upload error",
			ft:   &fakeTransport{uploadErr: errors.New("connection reset")},
			opts: Options{InlineThreshold: 8},
			size: 100,
			want: KindUpload,
		},
		{
			name: "failed on upload",
			ft:   &fakeTransport{uploadState: genai.FileStateFailed},
			opts: Options{InlineThreshold: 8},
			size: 100,
			want: KindUpload,
		},
		{
			name: "failed while polling",
			ft: &fakeTransport{status: func(int) (genai.FileState, error) {
				return genai.FileStateFailed, nil
			}},
			opts: Options{InlineThreshold: 8, PollInterval: time.Millisecond},
			size: 100,
			want: KindUpload,
		},
		{
			name: "too large",
			ft:   &fakeTransport{text: fastResponse},
			opts: Options{InlineThreshold: 8, MaxFileSize: 50},
			size: 100,
			want: KindUpload,
		},
		{
			name: "generate error",
			ft:   &fakeTransport{generateErr: errors.New("quota exceeded")},
			size: 4,
			want: KindGeneration,
		},
		{
			name: "empty text",
			ft:   &fakeTransport{text: "  "},
			size: 4,
			want: KindGeneration,
		},
		{
			name: "unparsable text",
			ft:   &fakeTransport{text: "I cannot watch videos."},
			size: 4,
			want: KindParse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.ft, tt.opts)
			res, err := a.Run(context.Background(), video(tt.size), ModeDeep, nil)
			if res != nil {
				t.Errorf("Run() result = %+v, want nil", res)
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf(err) = %v, want %v (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestRun_TooLargeMakesNoCalls(t *testing.T) {
	ft := &fakeTransport{text: fastResponse}
	a := NewAnalyzer(ft, Options{MaxFileSize: 10})
	if _, err := a.Run(context.Background(), video(11), ModeFast, nil); KindOf(err) != KindUpload {
		t.Fatalf("Run() error = %v, want upload error", err)
	}
	if u, s, g := ft.counts(); u+s+g != 0 {
		t.Error("transport called for an oversized file")
	}
}

func TestRun_RequestShape(t *testing.T) {
	ft := &fakeTransport{text: deepResponse}
	a := NewAnalyzer(ft, Options{Model: gemini.ModelGemini25Flash})

	if _, err := a.Run(context.Background(), video(4), ModeDeep, nil); err != nil {
		t.Fatal(err)
	}
	req := ft.lastReq
	if req.Model != gemini.ModelGemini25Flash {
		t.Errorf("Model = %q", req.Model)
	}
	if req.Schema == nil || req.Schema.Properties["mindMapMermaid"] == nil {
		t.Error("deep request without deep schema")
	}
	if len(req.Parts) != 2 || req.Parts[1].Text == "" {
		t.Errorf("Parts = %+v, want media then instruction", req.Parts)
	}
	if req.ThinkingBudget == nil || *req.ThinkingBudget != deepThinkingBudget {
		t.Errorf("ThinkingBudget = %v", req.ThinkingBudget)
	}
}

func TestOptionsDefaults(t *testing.T) {
	a := NewAnalyzer(&fakeTransport{}, Options{})
	opts := a.Options()
	if opts.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", opts.PollInterval)
	}
	if opts.MaxPollAttempts != 240 {
		t.Errorf("MaxPollAttempts = %d, want 240", opts.MaxPollAttempts)
	}
	if opts.InlineThreshold != 20*1024*1024 {
		t.Errorf("InlineThreshold = %d, want 20 MiB", opts.InlineThreshold)
	}
	if opts.Model == "" {
		t.Error("Model not defaulted")
	}
}
