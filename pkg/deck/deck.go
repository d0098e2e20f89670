// Package deck is the public entry point for building slide decks from
// processed documents and following remote processing jobs.
package deck

import (
	"context"
	"io"

	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/document"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/images"
	"github.com/spherical/slide-deck/internal/observability"
	"github.com/spherical/slide-deck/internal/progress"
	"github.com/spherical/slide-deck/internal/slides"
)

// Re-exported types.
type (
	Document    = domain.Document
	PageContent = domain.PageContent
	Section     = domain.Section
	ImageRegion = domain.ImageRegion
	Rect        = domain.Rect
	Table       = domain.Table
	SlideRecord = domain.SlideRecord
	JobStatus   = progress.JobStatus
	ManualStore = images.ManualStore
	Config      = slides.Config
)

// NewManualStore returns an empty store of caller-placed images.
func NewManualStore() *ManualStore {
	return images.NewManualStore()
}

// Load decodes a processed document in any supported shape.
func Load(data []byte) (*Document, error) {
	loader, err := document.NewLoader(nil)
	if err != nil {
		return nil, err
	}
	return loader.Decode(data)
}

// LoadFile reads and decodes a processed document.
func LoadFile(path string) (*Document, error) {
	loader, err := document.NewLoader(nil)
	if err != nil {
		return nil, err
	}
	return loader.LoadFile(path)
}

// Build synthesizes the deck of doc. manual may be nil.
func Build(doc Document, cfg Config, manual *ManualStore) []SlideRecord {
	synth := slides.NewSynthesizer(cfg)
	if manual == nil {
		return synth.Synthesize(doc, nil)
	}
	return synth.Synthesize(doc, manual)
}

// WriteHTML renders a deck as a standalone HTML page.
func WriteHTML(w io.Writer, title string, deck []SlideRecord) error {
	return slides.RenderHTML(w, title, deck)
}

// TrackOptions configures Track.
type TrackOptions struct {
	Dialer   channel.Dialer // defaults to a WebSocket dialer on BaseURL
	BaseURL  string
	Channel  channel.Config
	Tracker  progress.Config // zero value completes without settling
	OnUpdate func(JobStatus)
	Logger   *observability.Logger
}

// Track follows a job until it finishes or ctx is done and returns the last
// status. A job that ends in failure is reported through the status, not the
// error.
func Track(ctx context.Context, jobID string, opts TrackOptions) (JobStatus, error) {
	dialer := opts.Dialer
	if dialer == nil {
		if opts.BaseURL == "" {
			return JobStatus{}, domain.ConfigError("track requires a dialer or base URL", nil)
		}
		dialer = channel.NewWebSocketDialer(opts.BaseURL)
	}
	defaults := channel.DefaultConfig()
	if opts.Channel.BaseDelay <= 0 {
		opts.Channel.BaseDelay = defaults.BaseDelay
	}
	if opts.Channel.MaxAttempts <= 0 {
		opts.Channel.MaxAttempts = defaults.MaxAttempts
	}

	ch := channel.New(dialer, opts.Channel, opts.Logger)
	defer ch.Shutdown()

	var trackerOpts []progress.Option
	if opts.OnUpdate != nil {
		trackerOpts = append(trackerOpts, progress.WithListener(opts.OnUpdate))
	}
	tracker := progress.NewTracker(jobID, opts.Tracker, opts.Logger, trackerOpts...)
	defer tracker.Close()

	if err := tracker.Start(ctx, ch); err != nil {
		return tracker.Status(), err
	}

	select {
	case <-tracker.Done():
		return tracker.Status(), nil
	case <-ctx.Done():
		return tracker.Status(), ctx.Err()
	}
}
