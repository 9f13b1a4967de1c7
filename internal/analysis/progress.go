package analysis

import "sync"

// Stage is the coarse phase of a job shown next to the percentage.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageAnalyzing  Stage = "analyzing"
	StageGenerating Stage = "generating"
)

// Label returns the Chinese display text.
func (s Stage) Label() string {
	switch s {
	case StageUploading:
		return "正在上传视频"
	case StageAnalyzing:
		return "视频处理中"
	case StageGenerating:
		return "正在生成分析"
	default:
		return string(s)
	}
}

func (s Stage) rank() int {
	switch s {
	case StageUploading:
		return 1
	case StageAnalyzing:
		return 2
	case StageGenerating:
		return 3
	default:
		return 0
	}
}

// Progress is one progress event.
type Progress struct {
	Stage   Stage `json:"stage"`
	Percent int   `json:"percent"`
}

// ProgressFunc receives progress events synchronously from the job goroutine.
type ProgressFunc func(Progress)

// Percentages reported at fixed points of a run.
const (
	percentUploadStart    = 10
	percentUploaded       = 30
	percentPollSpan       = 50 // polling moves from 30 up to 80
	percentMediaReady     = 85
	percentRequestSent    = 90
	percentResponse       = 98
	percentComplete       = 100
	pollPercentPerAttempt = 2
)

// pollPercent maps a poll attempt to the overall percentage.
func pollPercent(attempt int) int {
	return percentUploaded + min(percentPollSpan, attempt*pollPercentPerAttempt)
}

// progressReporter forwards events while keeping the stage order forward-only
// and percentages non-decreasing. Out-of-order events are dropped.
type progressReporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last Progress
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(stage Stage, percent int) {
	percent = max(0, min(100, percent))

	p.mu.Lock()
	if stage.rank() < p.last.Stage.rank() || percent < p.last.Percent {
		p.mu.Unlock()
		return
	}
	if stage == p.last.Stage && percent == p.last.Percent {
		p.mu.Unlock()
		return
	}
	p.last = Progress{Stage: stage, Percent: percent}
	ev := p.last
	p.mu.Unlock()

	if p.fn != nil {
		p.fn(ev)
	}
}
