// Package server is the reference processing backend: it accepts uploads,
// walks each job through the stage catalog and streams the events.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spherical/slide-deck/internal/cache"
	"github.com/spherical/slide-deck/internal/config"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/images"
	"github.com/spherical/slide-deck/internal/observability"
	"github.com/spherical/slide-deck/internal/progress"
	"github.com/spherical/slide-deck/internal/slides"
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Logger    *observability.Logger
	Documents domain.DocumentStore
	Decoder   Decoder
	Publisher Publisher // optional broker fan-out
	Wait      func(ctx context.Context, d time.Duration) error
	AfterFunc progress.AfterFunc // schedules job expiry; defaults to time.AfterFunc
}

// Server wires the hub, the runner and the HTTP routes.
type Server struct {
	cfg    *config.Config
	logger *observability.Logger
	hub    *Hub
	runner *Runner
	docs   domain.DocumentStore
	synth  *slides.Synthesizer

	retention time.Duration
	afterFunc progress.AfterFunc

	mu     sync.Mutex
	jobs   map[string]*images.ManualStore
	expiry map[string]progress.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Documents == nil {
		return nil, domain.ConfigError("server requires a document store", nil)
	}
	if deps.Decoder == nil {
		return nil, domain.ConfigError("server requires a decoder", nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.Nop()
	}

	synth := slides.NewSynthesizer(slides.Config{
		CoverTitle:    cfg.Deck.CoverTitle,
		CoverSubtitle: cfg.Deck.CoverSubtitle,
		SummaryTitle:  cfg.Deck.SummaryTitle,
		Placeholder: domain.Rect{
			Top:    cfg.Deck.PlaceholderTop,
			Left:   cfg.Deck.PlaceholderLeft,
			Width:  cfg.Deck.PlaceholderWidth,
			Height: cfg.Deck.PlaceholderHeight,
		},
	})

	var publisher Publisher
	if cfg.Jobs.PublishRedis || cfg.Notify.Transport == "redis" {
		publisher = deps.Publisher
	}
	hub := NewHub(cfg.Server.BacklogSize, publisher, logger)

	opts := []RunnerOption{
		WithStepDelay(cfg.Jobs.StepDelay),
		WithPresentationURL(cfg.PresentationURL),
	}
	if deps.Wait != nil {
		opts = append(opts, WithRunnerWait(deps.Wait))
	}

	retention := cfg.Cache.TTL
	if retention <= 0 {
		retention = cache.DefaultDocumentTTL
	}
	afterFunc := deps.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, f func()) progress.Timer {
			return time.AfterFunc(d, f)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.WithComponent("server"),
		hub:    hub,
		runner: NewRunner(hub, deps.Decoder, deps.Documents, synth, logger, opts...),
		docs:   deps.Documents,
		synth:  synth,
		retention: retention,
		afterFunc: afterFunc,
		jobs:      make(map[string]*images.ManualStore),
		expiry:    make(map[string]progress.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Hub exposes the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// register records a new job and returns its manual image store.
func (s *Server) register(jobID string) *images.ManualStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	store := images.NewManualStore()
	s.jobs[jobID] = store
	return store
}

// manual returns the manual image store of a job, creating one for jobs only
// known through the document store.
func (s *Server) manual(ctx context.Context, jobID string) (*images.ManualStore, bool) {
	s.mu.Lock()
	store, ok := s.jobs[jobID]
	s.mu.Unlock()
	if ok {
		return store, true
	}

	if _, err := s.docs.Get(ctx, jobID); err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.jobs[jobID]; ok {
		return store, true
	}
	store = images.NewManualStore()
	s.jobs[jobID] = store
	s.expireLocked(jobID)
	return store, true
}

// expireLocked schedules the job's in-memory state to be dropped once the
// retention period passes, replacing any earlier schedule.
func (s *Server) expireLocked(jobID string) {
	if t, ok := s.expiry[jobID]; ok {
		t.Stop()
	}
	s.expiry[jobID] = s.afterFunc(s.retention, func() { s.forget(jobID) })
}

// forget drops a job's manual images and event backlog.
func (s *Server) forget(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	delete(s.expiry, jobID)
	s.mu.Unlock()
	s.hub.Forget(jobID)
	s.logger.Debug().Str("job_id", jobID).Msg("job state expired")
}

func (s *Server) known(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// Start runs a job in the background.
func (s *Server) Start(jobID string, payload []byte) {
	store := s.register(jobID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.runner.Run(s.ctx, jobID, payload, store)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("job ended with error")
		}
		if s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.expireLocked(jobID)
		s.mu.Unlock()
	}()
}

// Close cancels running jobs, waits for them and stops pending expiries.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.expiry {
		t.Stop()
		delete(s.expiry, id)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = domain.TransportError("server error", err)
		}
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.GracefulShutdown)
	defer cancel()

	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Close(); err != nil {
			s.logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	s.logger.Info().Msg("server stopped")
	return serveErr
}
