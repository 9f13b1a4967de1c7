// Package jobs tracks analysis jobs started from the web UI. A job runs in its
// own goroutine; the UI polls its snapshot and may cancel it.
//
// Only one job may be in flight at a time. Start returns ErrBusy while another
// job is pending or running.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/cancel"
	"github.com/rs/zerolog/log"
)

// ErrBusy is returned by Start while another job is in flight.
var ErrBusy = errors.New("another analysis is already running")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has settled.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// finishedTTL is how long settled jobs stay queryable.
const finishedTTL = time.Hour

// Outcome is what a successful run hands back.
type Outcome struct {
	Result    *analysis.Result
	HistoryID string
}

// RunFunc performs the work of a job. It must honour ctx and report progress
// through report.
type RunFunc func(ctx context.Context, report analysis.ProgressFunc) (Outcome, error)

// Job is one analysis job.
type Job struct {
	mu        sync.Mutex
	id        string
	fileName  string
	mode      analysis.Mode
	status    Status
	progress  analysis.Progress
	result    *analysis.Result
	historyID string
	errMsg    string
	notice    string
	createdAt time.Time
	settledAt time.Time

	token *cancel.Token
	done  chan struct{}
}

// Snapshot is the JSON view of a job returned to the UI.
type Snapshot struct {
	ID         string           `json:"id"`
	FileName   string           `json:"fileName"`
	Mode       analysis.Mode    `json:"mode"`
	Status     Status           `json:"status"`
	Stage      analysis.Stage   `json:"stage,omitempty"`
	StageLabel string           `json:"stageLabel,omitempty"`
	Percent    int              `json:"percent"`
	Result     *analysis.Result `json:"result,omitempty"`
	HistoryID  string           `json:"historyId,omitempty"`
	Error      string           `json:"error,omitempty"`
	Notice     string           `json:"notice,omitempty"`
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// Done is closed once the job has settled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Snapshot returns a consistent copy of the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:        j.id,
		FileName:  j.fileName,
		Mode:      j.mode,
		Status:    j.status,
		Stage:     j.progress.Stage,
		Percent:   j.progress.Percent,
		Result:    j.result,
		HistoryID: j.historyID,
		Error:     j.errMsg,
		Notice:    j.notice,
	}
	if s.Stage != "" {
		s.StageLabel = s.Stage.Label()
	}
	return s
}

func (j *Job) setProgress(p analysis.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.progress = p
}

// settle records the single terminal outcome of the job.
func (j *Job) settle(out Outcome, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.settledAt = time.Now()
	switch {
	case err == nil:
		j.status = StatusComplete
		j.result = out.Result
		j.historyID = out.HistoryID
	case analysis.IsCancelled(err):
		j.status = StatusCancelled
		j.notice = analysis.UserMessage(err)
	default:
		j.status = StatusError
		j.errMsg = analysis.UserMessage(err)
		log.Error().
			Err(err).
			Str("job", j.id).
			Str("kind", analysis.KindOf(err).String()).
			Msg("Job failed")
	}
}

// Registry holds jobs by ID.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	active *Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Start admits a new job and runs it in the background. The job's context is
// derived from parent, so cancelling parent (e.g. on server shutdown) cancels
// the job too.
func (r *Registry) Start(parent context.Context, fileName string, mode analysis.Mode, run RunFunc) (*Job, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.pruneLocked(time.Now())

	j := &Job{
		id:        GenerateID("job-"),
		fileName:  fileName,
		mode:      mode,
		status:    StatusPending,
		createdAt: time.Now(),
		token:     cancel.New(parent),
		done:      make(chan struct{}),
	}
	r.jobs[j.id] = j
	r.active = j
	r.mu.Unlock()

	log.Info().Str("job", j.id).Str("file", fileName).Str("mode", string(mode)).Msg("Job started")
	go r.execute(j, run)
	return j, nil
}

func (r *Registry) execute(j *Job, run RunFunc) {
	defer close(j.done)
	defer j.token.Release()

	j.mu.Lock()
	if j.status == StatusPending {
		j.status = StatusRunning
	}
	j.mu.Unlock()

	var (
		out Outcome
		err error
	)
	if j.token.Cancelled() {
		err = cancel.ErrCancelled
	} else {
		out, err = run(j.token.Context(), j.setProgress)
	}
	j.settle(out, err)

	r.mu.Lock()
	if r.active == j {
		r.active = nil
	}
	r.mu.Unlock()

	log.Info().Str("job", j.id).Str("status", string(j.Snapshot().Status)).Msg("Job settled")
}

// Get returns the job with the given ID, or nil.
func (r *Registry) Get(id string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// Cancel fires the job's token. It reports whether the job exists; cancelling
// a settled or already-cancelled job is a no-op.
func (r *Registry) Cancel(id string) bool {
	j := r.Get(id)
	if j == nil {
		return false
	}
	if j.token.Cancel() {
		log.Info().Str("job", id).Msg("Job cancellation requested")
	}
	return true
}

// Active returns the in-flight job, or nil.
func (r *Registry) Active() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// CancelAll cancels the in-flight job, if any. Used on shutdown.
func (r *Registry) CancelAll() {
	if j := r.Active(); j != nil {
		j.token.Cancel()
	}
}

// pruneLocked forgets jobs that settled more than finishedTTL ago.
func (r *Registry) pruneLocked(now time.Time) {
	for id, j := range r.jobs {
		j.mu.Lock()
		expired := j.status.Terminal() && now.Sub(j.settledAt) > finishedTTL
		j.mu.Unlock()
		if expired {
			delete(r.jobs, id)
		}
	}
}
