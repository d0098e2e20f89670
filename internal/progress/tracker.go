// Package progress tracks the lifecycle of one remote processing job.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
	"github.com/spherical/slide-deck/internal/stage"
)

// Fixed messages for channel-level failures.
const (
	TransportFailureMessage = "Lost connection to the processing server"
	ProtocolFailureMessage  = "Received an invalid message from the processing server"
)

const defaultSettlingDelay = 2 * time.Second

// JobStatus is the observable state of a job.
type JobStatus struct {
	JobID           string
	CurrentStage    stage.ID
	ProgressPercent int
	StatusMessage   string
	Terminal        bool
	Settling        bool // complete received, waiting out the settling delay
	LastError       string
	ErrorKind       domain.ErrorType
	Retryable       bool
	PresentationURL string
	Slides          []domain.SlideRecord
}

// Succeeded reports whether the job finished with COMPLETE.
func (s JobStatus) Succeeded() bool {
	return s.Terminal && s.LastError == "" && s.CurrentStage == stage.Complete
}

// Config controls the tracker.
type Config struct {
	SettlingDelay time.Duration
}

// DefaultConfig returns the default settling delay of two seconds.
func DefaultConfig() Config {
	return Config{SettlingDelay: defaultSettlingDelay}
}

// Opener opens a job's notification stream. *channel.Channel satisfies it.
type Opener interface {
	Open(ctx context.Context, jobID string, handlers channel.Handlers) (*channel.Handle, error)
}

// Timer is a pending settling callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Tracker.
type Option func(*Tracker)

// WithAfterFunc replaces the settling timer, mainly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(t *Tracker) {
		t.afterFunc = fn
	}
}

// WithListener registers a callback invoked after every state change.
func WithListener(fn func(JobStatus)) Option {
	return func(t *Tracker) {
		t.listener = fn
	}
}

// Tracker is the state machine for one job. Inbound events and failures may
// arrive from the stream goroutine while the settling timer fires on another;
// all state is guarded by mu.
type Tracker struct {
	jobID     string
	cfg       Config
	logger    *observability.Logger
	afterFunc AfterFunc
	listener  func(JobStatus)

	mu         sync.Mutex
	current    stage.ID
	percent    int
	message    string // event override, resolved through stage.MessageFor
	terminal   bool
	settling   bool
	closed     bool
	lastError  string
	errorKind  domain.ErrorType
	retryable  bool
	pendingURL string
	url        string
	slides     []domain.SlideRecord
	timer      Timer
	handle     *channel.Handle

	done     chan struct{}
	doneOnce sync.Once
}

// NewTracker creates a tracker in the initial stage.
func NewTracker(jobID string, cfg Config, logger *observability.Logger, opts ...Option) *Tracker {
	if cfg.SettlingDelay < 0 {
		cfg.SettlingDelay = 0
	}
	if logger == nil {
		logger = observability.Nop()
	}

	initial := stage.Initial()
	t := &Tracker{
		jobID:   jobID,
		cfg:     cfg,
		logger:  logger.WithComponent("tracker").WithJob(jobID),
		current: initial.ID,
		percent: initial.Percent,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start opens the job's stream and feeds it into the tracker.
func (t *Tracker) Start(ctx context.Context, opener Opener) error {
	h, err := opener.Open(ctx, t.jobID, channel.Handlers{
		OnEvent:   t.HandleEvent,
		OnFailure: t.HandleFailure,
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.handle = h
	finished := t.terminal || t.settling || t.closed
	t.mu.Unlock()

	if finished {
		h.Close()
	}
	return nil
}

// Done is closed when the job reaches a terminal state or the tracker is closed.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Status returns a snapshot of the job's state.
func (t *Tracker) Status() JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() JobStatus {
	return JobStatus{
		JobID:           t.jobID,
		CurrentStage:    t.current,
		ProgressPercent: t.percent,
		StatusMessage:   stage.MessageFor(t.current, t.message),
		Terminal:        t.terminal,
		Settling:        t.settling,
		LastError:       t.lastError,
		ErrorKind:       t.errorKind,
		Retryable:       t.retryable,
		PresentationURL: t.url,
		Slides:          append([]domain.SlideRecord(nil), t.slides...),
	}
}

// HandleEvent applies one inbound event.
func (t *Tracker) HandleEvent(ev channel.Event) {
	t.mu.Lock()
	if t.closed || t.terminal || t.settling {
		t.mu.Unlock()
		return
	}

	changed := true
	switch e := ev.(type) {
	case channel.StatusEvent:
		t.keepSlides(e.Slides)
		t.applyStage(e.Stage, e.Progress, e.Message, false)
	case channel.ProgressEvent:
		t.keepSlides(e.Slides)
		changed = t.applyStage(e.Stage, e.Progress, e.Message, true)
	case channel.CompleteEvent:
		t.keepSlides(e.Slides)
		t.complete(e)
	case channel.ErrorEvent:
		t.fail(e.Message, domain.ErrorTypeJob, false)
	default:
		changed = false
	}

	t.publish(changed)
}

// HandleFailure applies a channel-level failure.
func (t *Tracker) HandleFailure(err error) {
	t.mu.Lock()
	if t.closed || t.terminal || t.settling {
		t.mu.Unlock()
		return
	}

	t.logger.Warn().Err(err).Msg("notification channel failed")
	if domain.IsType(err, domain.ErrorTypeProtocol) {
		t.fail(ProtocolFailureMessage, domain.ErrorTypeProtocol, false)
	} else {
		t.fail(TransportFailureMessage, domain.ErrorTypeTransport, true)
	}

	t.publish(true)
}

// Close abandons the job: it cancels a pending settling callback and closes
// the stream. It is safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	h := t.handle
	t.mu.Unlock()

	h.Close()
	t.markDone()
}

// applyStage returns false when the event was suppressed.
func (t *Tracker) applyStage(name string, pct *int, message string, refinement bool) bool {
	s, known := stage.Lookup(name)
	if !known {
		if pct != nil {
			t.percent = *pct
		}
		if message != "" {
			t.message = message
		}
		t.logger.Debug().Str("stage", name).Msg("unknown stage, keeping current")
		return true
	}

	if refinement && s.Step < stage.Ordinal(t.current) {
		t.logger.Debug().Str("stage", name).Str("current", string(t.current)).Msg("ignoring progress for earlier stage")
		return false
	}

	if s.ID != t.current {
		t.logger.Info().Str("stage", string(s.ID)).Msg("stage changed")
	}
	t.current = s.ID
	t.percent = s.Percent
	if pct != nil {
		t.percent = *pct
	}
	t.message = message
	return true
}

func (t *Tracker) complete(e channel.CompleteEvent) {
	if e.PresentationURL == "" || t.cfg.SettlingDelay == 0 {
		t.url = e.PresentationURL
		t.finish(e.Message)
		return
	}

	t.settling = true
	t.pendingURL = e.PresentationURL
	t.message = e.Message
	t.logger.Info().Dur("delay", t.cfg.SettlingDelay).Msg("complete received, waiting for artifact to settle")
	t.timer = t.afterFunc(t.cfg.SettlingDelay, t.settle)
}

func (t *Tracker) settle() {
	t.mu.Lock()
	if t.closed || t.terminal || !t.settling {
		t.mu.Unlock()
		return
	}
	t.url = t.pendingURL
	t.finish(t.message)
	t.publish(true)
}

func (t *Tracker) finish(message string) {
	t.settling = false
	t.terminal = true
	t.timer = nil
	t.current = stage.Complete
	t.percent = 100
	t.message = message
	t.logger.Info().Str("presentation_url", t.url).Msg("job complete")
}

func (t *Tracker) fail(message string, kind domain.ErrorType, retryable bool) {
	t.terminal = true
	t.lastError = message
	t.errorKind = kind
	t.retryable = retryable
	t.logger.Error().Str("error", message).Str("kind", string(kind)).Bool("retryable", retryable).Msg("job failed")
}

func (t *Tracker) keepSlides(slides []domain.SlideRecord) {
	if len(slides) > 0 {
		t.slides = slides
	}
}

// publish releases mu, then closes the stream on terminal and notifies the listener.
func (t *Tracker) publish(changed bool) {
	snapshot := t.statusLocked()
	finished := t.terminal || t.settling
	var h *channel.Handle
	if finished {
		h = t.handle
	}
	t.mu.Unlock()

	if finished {
		h.Close()
	}
	if changed && t.listener != nil {
		t.listener(snapshot)
	}
	if snapshot.Terminal {
		t.markDone()
	}
}

func (t *Tracker) markDone() {
	t.doneOnce.Do(func() {
		close(t.done)
	})
}
