// Package poller tracks a server-side job until it reaches a terminal
// state, exposing a monotonic progress percentage along the way.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

const (
	// DefaultInterval is used for lead extraction and enrichment jobs.
	DefaultInterval = 2 * time.Second
	// AuditInterval is used for audit jobs.
	AuditInterval = 3 * time.Second

	statusCheckMessage = "error checking status"
)

// Phase is the poller's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePolling:
		return "polling"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StatusFunc fetches the current state of a job.
type StatusFunc func(ctx context.Context, id string) (*model.Job, error)

// FailedError is returned when the server reports the job as failed.
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// StatusError is returned when a status request itself fails. The cause
// is kept for logging but never used to decide on a retry.
type StatusError struct {
	JobID string
	Err   error
}

func (e *StatusError) Error() string {
	return statusCheckMessage
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPolicy sets the progress policy.
func WithPolicy(policy ProgressPolicy) Option {
	return func(p *Poller) {
		p.policy = policy
	}
}

// WithClock overrides the clock used by Run.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// OnCompleted registers the callback invoked once when the job completes.
func OnCompleted(fn func(job *model.Job)) Option {
	return func(p *Poller) {
		p.onCompleted = fn
	}
}

// OnFailed registers the callback invoked once when the job fails or a
// status request errors.
func OnFailed(fn func(job *model.Job, err error)) Option {
	return func(p *Poller) {
		p.onFailed = fn
	}
}

// OnProgress registers a callback invoked whenever displayed progress changes.
func OnProgress(fn func(pct int)) Option {
	return func(p *Poller) {
		p.onProgress = fn
	}
}

// Poller is a single-use state machine driven by Start, Tick, HandleJob
// and HandleError. Run wires those events to a ticker.
type Poller struct {
	status   StatusFunc
	interval time.Duration
	policy   ProgressPolicy
	clock    Clock

	onCompleted func(*model.Job)
	onFailed    func(*model.Job, error)
	onProgress  func(int)

	mu       sync.Mutex
	phase    Phase
	jobID    string
	progress int
	inFlight bool
	result   *model.Job
	err      error

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Poller for the given status accessor.
func New(status StatusFunc, opts ...Option) *Poller {
	p := &Poller{
		status:   status,
		interval: DefaultInterval,
		policy:   LeadPolicy,
		clock:    RealClock{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Phase returns the current lifecycle state.
func (p *Poller) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Progress returns the displayed progress percentage.
func (p *Poller) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Done is closed on the first terminal outcome or on Stop.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Start moves an idle poller into the polling phase for job id.
func (p *Poller) Start(id string) error {
	p.mu.Lock()
	if p.phase != PhaseIdle || p.jobID != "" {
		p.mu.Unlock()
		return eris.Errorf("poller: already started for job %s", p.jobID)
	}
	p.phase = PhasePolling
	p.jobID = id
	p.progress = p.policy.Start
	pct := p.progress
	p.mu.Unlock()

	zap.L().Debug("poller: start",
		zap.String("job_id", id),
		zap.String("policy", p.policy.Name),
		zap.Duration("interval", p.interval),
	)
	p.emitProgress(pct)
	return nil
}

// Tick issues one status request unless one is already in flight or the
// poller is no longer polling. It reports whether a request was made.
func (p *Poller) Tick(ctx context.Context) bool {
	p.mu.Lock()
	if p.phase != PhasePolling || p.inFlight {
		p.mu.Unlock()
		return false
	}
	p.inFlight = true
	id := p.jobID
	p.mu.Unlock()

	job, err := p.status(ctx, id)

	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()

	// A response that lands after cancellation belongs to an abandoned poll.
	if ctx.Err() != nil {
		p.Stop()
		return true
	}
	if err != nil {
		p.HandleError(err)
	} else {
		p.HandleJob(job)
	}
	return true
}

// HandleJob applies a status response. Responses that arrive after a
// terminal outcome or Stop are ignored.
func (p *Poller) HandleJob(job *model.Job) {
	if job == nil {
		p.HandleError(eris.New("poller: empty status response"))
		return
	}

	p.mu.Lock()
	if p.phase != PhasePolling {
		p.mu.Unlock()
		return
	}

	switch job.Status {
	case model.JobStatusCompleted:
		p.phase = PhaseCompleted
		p.progress = 100
		p.result = job
		p.mu.Unlock()

		p.stop()
		zap.L().Info("poller: job completed",
			zap.String("job_id", job.ID),
			zap.String("result_file", job.ResultFileName()),
		)
		p.emitProgress(100)
		if p.onCompleted != nil {
			p.onCompleted(job)
		}

	case model.JobStatusFailed:
		p.phase = PhaseFailed
		p.result = job
		p.err = &FailedError{JobID: p.jobID, Message: job.ErrorMessage()}
		id, err := p.jobID, p.err
		p.mu.Unlock()

		p.stop()
		zap.L().Warn("poller: job failed",
			zap.String("job_id", id),
			zap.String("error", job.ErrorMessage()),
		)
		if p.onFailed != nil {
			p.onFailed(job, err)
		}

	default:
		prev := p.progress
		p.progress = p.policy.Next(prev, job)
		pct := p.progress
		p.mu.Unlock()

		if pct != prev {
			p.emitProgress(pct)
		}
	}
}

// HandleError records a transport failure during polling. Polling stops
// immediately; there is no retry.
func (p *Poller) HandleError(err error) {
	p.mu.Lock()
	if p.phase != PhasePolling {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseFailed
	job := &model.Job{
		ID:     p.jobID,
		Status: model.JobStatusFailed,
		Error:  model.StringPtr(statusCheckMessage),
	}
	p.result = job
	p.err = &StatusError{JobID: p.jobID, Err: err}
	statusErr := p.err
	p.mu.Unlock()

	p.stop()
	zap.L().Warn("poller: status check failed",
		zap.String("job_id", job.ID),
		zap.Error(err),
	)
	if p.onFailed != nil {
		p.onFailed(job, statusErr)
	}
}

// Stop abandons polling without a terminal outcome. Late responses are
// ignored. Calling Stop more than once is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.phase == PhasePolling {
		p.phase = PhaseIdle
	}
	p.mu.Unlock()
	p.stop()
}

func (p *Poller) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

// Result returns the terminal job and error. Before a terminal outcome it
// returns nil, nil.
func (p *Poller) Result() (*model.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// Run starts polling job id, ticking at the configured interval until the
// job completes, fails, a status request errors, or ctx is cancelled.
func (p *Poller) Run(ctx context.Context, id string) (*model.Job, error) {
	if err := p.Start(id); err != nil {
		return nil, err
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("poller: poll job %s cancelled", id))
		case <-p.done:
			job, err := p.Result()
			if job == nil && err == nil {
				if ctx.Err() != nil {
					return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("poller: poll job %s cancelled", id))
				}
				return nil, eris.Errorf("poller: poll job %s stopped", id)
			}
			return job, err
		case <-ticker.C():
			p.Tick(ctx)
		}
	}
}

func (p *Poller) emitProgress(pct int) {
	if p.onProgress != nil {
		p.onProgress(pct)
	}
}
