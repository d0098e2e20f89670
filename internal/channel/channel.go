// Package channel maintains a per-job notification stream that reconnects
// with backoff when the underlying transport drops.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
)

var (
	// ErrAlreadyOpen is returned when a job already has an open stream.
	ErrAlreadyOpen = errors.New("channel already open for job")
	// ErrClosed is returned by Open after Shutdown.
	ErrClosed = errors.New("channel is shut down")
	// ErrRetriesExhausted marks the permanent failure after the last retry.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Conn is one live transport connection.
type Conn interface {
	// ReadMessage blocks until the next payload arrives or the connection fails.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a transport connection for a job's event stream.
type Dialer interface {
	Dial(ctx context.Context, jobID string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, jobID string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, jobID string) (Conn, error) {
	return f(ctx, jobID)
}

// Handlers are invoked from the stream's goroutine, one call at a time.
type Handlers struct {
	OnEvent   func(Event)
	OnFailure func(error)
}

// Config controls reconnection.
type Config struct {
	MaxAttempts int           // retries after the first dial
	BaseDelay   time.Duration // delay unit for Backoff
}

// DefaultConfig returns three retries with a one second base delay.
func DefaultConfig() Config {
	return Config{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay}
}

// Backoff returns the delay before retry attempt (1-indexed).
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * base
}

// WaitFunc sleeps for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Option configures a Channel.
type Option func(*Channel)

// WithWait replaces the retry sleep.
func WithWait(wait WaitFunc) Option {
	return func(c *Channel) {
		c.wait = wait
	}
}

// Channel opens job streams and enforces one stream per job.
type Channel struct {
	dialer Dialer
	cfg    Config
	logger *observability.Logger
	wait   WaitFunc

	mu       sync.Mutex
	open     map[string]*Handle
	shutdown bool
}

// New creates a Channel.
func New(dialer Dialer, cfg Config, logger *observability.Logger, opts ...Option) *Channel {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if logger == nil {
		logger = observability.Nop()
	}

	c := &Channel{
		dialer: dialer,
		cfg:    cfg,
		logger: logger.WithComponent("channel"),
		wait:   sleep,
		open:   make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle is an open job stream.
type Handle struct {
	jobID  string
	owner  *Channel
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// JobID returns the job the stream belongs to.
func (h *Handle) JobID() string {
	if h == nil {
		return ""
	}
	return h.jobID
}

// Close stops the stream and cancels any pending retry. It does not wait for
// the stream goroutine, so it is safe to call from a handler. Closing a nil
// or closed handle is a no-op.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		if h.owner != nil {
			h.owner.release(h)
		}
	})
}

// Done is closed once the stream goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Open starts streaming events for jobID.
func (c *Channel) Open(ctx context.Context, jobID string, handlers Handlers) (*Handle, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := c.open[jobID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		owner:  c,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.open[jobID] = h
	c.mu.Unlock()

	go c.run(ctx, h, handlers)
	return h, nil
}

// Shutdown closes every open stream and rejects further Opens.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	handles := make([]*Handle, 0, len(c.open))
	for _, h := range c.open {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

func (c *Channel) release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open[h.jobID] == h {
		delete(c.open, h.jobID)
	}
}

func (c *Channel) run(ctx context.Context, h *Handle, handlers Handlers) {
	defer close(h.done)
	defer h.Close()

	log := c.logger.WithJob(h.jobID)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dialer.Dial(ctx, h.jobID)
		if err == nil {
			attempt = 0
			log.Debug().Msg("stream connected")
			err = c.serve(ctx, conn, handlers)
		}
		if ctx.Err() != nil {
			return
		}

		if domain.IsType(err, domain.ErrorTypeProtocol) {
			log.Error().Err(err).Msg("protocol error, closing stream")
			notify(ctx, handlers.OnFailure, err)
			return
		}

		if attempt >= c.cfg.MaxAttempts {
			log.Error().Err(err).Int("retries", attempt).Msg("giving up on stream")
			notify(ctx, handlers.OnFailure, domain.TransportError(
				fmt.Sprintf("connection lost after %d retries", attempt),
				errors.Join(ErrRetriesExhausted, err),
			))
			return
		}

		attempt++
		delay := Backoff(attempt, c.cfg.BaseDelay)
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("stream dropped, reconnecting")

		if err := c.wait(ctx, delay); err != nil {
			return
		}
	}
}

// serve reads from conn until it fails or ctx is done.
func (c *Channel) serve(ctx context.Context, conn Conn, handlers Handlers) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if domain.IsType(err, domain.ErrorTypeTransport) {
				return err
			}
			return domain.TransportError("read failed", err)
		}

		event, err := Decode(data)
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
		if handlers.OnEvent != nil {
			handlers.OnEvent(event)
		}
	}
}

func notify(ctx context.Context, fn func(error), err error) {
	if fn == nil || ctx.Err() != nil {
		return
	}
	fn(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
