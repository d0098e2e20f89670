package server

import (
	"context"
	"errors"
	"time"

	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
	"github.com/spherical/slide-deck/internal/slides"
	"github.com/spherical/slide-deck/internal/stage"
)

// Decoder turns an uploaded payload into a document. document.Loader
// implements it.
type Decoder interface {
	Decode(data []byte) (*domain.Document, error)
}

// Runner walks a job through the stage catalog, publishing an event per stage.
type Runner struct {
	hub       *Hub
	decoder   Decoder
	docs      domain.DocumentStore
	synth     *slides.Synthesizer
	stepDelay time.Duration
	urlFor    func(jobID string) string
	wait      channel.WaitFunc
	logger    *observability.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStepDelay sets the pause between stages.
func WithStepDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.stepDelay = d
	}
}

// WithPresentationURL sets how the final presentation URL is derived.
func WithPresentationURL(fn func(jobID string) string) RunnerOption {
	return func(r *Runner) {
		r.urlFor = fn
	}
}

// WithRunnerWait replaces the sleep between stages.
func WithRunnerWait(w channel.WaitFunc) RunnerOption {
	return func(r *Runner) {
		r.wait = w
	}
}

// NewRunner creates a Runner.
func NewRunner(hub *Hub, decoder Decoder, docs domain.DocumentStore, synth *slides.Synthesizer, logger *observability.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = observability.Nop()
	}
	r := &Runner{
		hub:     hub,
		decoder: decoder,
		docs:    docs,
		synth:   synth,
		urlFor:  func(string) string { return "" },
		wait:    sleep,
		logger:  logger.WithComponent("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run processes payload for jobID. It always ends the stream with a complete
// or error event unless ctx is cancelled first.
func (r *Runner) Run(ctx context.Context, jobID string, payload []byte, manual domain.ManualImageSource) error {
	log := r.logger.WithJob(jobID)
	start := time.Now()

	var doc *domain.Document
	for _, st := range stage.All() {
		if st.ID == stage.Complete {
			break
		}

		msg := channel.Message{
			Type:     channel.TypeStatus,
			Stage:    string(st.ID),
			Message:  st.Message,
			Progress: channel.Percent(st.Percent),
		}
		if st.ID == stage.CreatingSlides && doc != nil {
			msg.Slides = r.synth.Synthesize(*doc, manual)
		}
		if err := r.hub.Publish(ctx, jobID, msg); err != nil {
			return err
		}
		log.Debug().Str("stage", string(st.ID)).Int("progress", st.Percent).Msg("stage published")

		if st.ID == stage.ProcessingSource {
			decoded, err := r.decoder.Decode(payload)
			if err != nil {
				log.Warn().Err(err).Msg("document rejected")
				return r.fail(ctx, jobID, err)
			}
			doc = decoded
			if err := r.docs.Set(ctx, jobID, doc); err != nil {
				log.Error().Err(err).Msg("failed to cache document")
				return r.fail(ctx, jobID, err)
			}
		}

		if err := r.wait(ctx, r.stepDelay); err != nil {
			log.Info().Str("stage", string(st.ID)).Msg("job cancelled")
			return err
		}
	}

	deck := r.synth.Synthesize(*doc, manual)
	done := channel.Message{
		Type:            channel.TypeComplete,
		Stage:           string(stage.Complete),
		Message:         stage.MessageFor(stage.Complete, ""),
		Progress:        channel.Percent(100),
		Slides:          deck,
		PresentationURL: r.urlFor(jobID),
	}
	if err := r.hub.Publish(ctx, jobID, done); err != nil {
		return err
	}

	log.Info().Int("slides", len(deck)).Dur("elapsed", time.Since(start)).Msg("job complete")
	return nil
}

func (r *Runner) fail(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	var de *domain.DomainError
	if errors.As(cause, &de) {
		msg = de.Message
		if de.Err != nil {
			msg += ": " + de.Err.Error()
		}
	}
	if err := r.hub.Publish(ctx, jobID, channel.Message{Type: channel.TypeError, Message: msg}); err != nil {
		return err
	}
	return domain.JobError("job failed", cause)
}
