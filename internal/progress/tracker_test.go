package progress

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
	"github.com/spherical/slide-deck/internal/stage"
)

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{delay: d, fire: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) last(t *testing.T) *fakeTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.timers)
	return c.timers[len(c.timers)-1]
}

func newTestTracker(clock *fakeClock, opts ...Option) *Tracker {
	opts = append([]Option{WithAfterFunc(clock.AfterFunc)}, opts...)
	return NewTracker("job-1", Config{SettlingDelay: 2 * time.Second}, observability.Nop(), opts...)
}

func pct(v int) *int { return &v }

func TestTracker_InitialStatus(t *testing.T) {
	tr := newTestTracker(&fakeClock{})
	s := tr.Status()

	assert.Equal(t, "job-1", s.JobID)
	assert.Equal(t, stage.Uploading, s.CurrentStage)
	assert.Equal(t, 5, s.ProgressPercent)
	assert.Equal(t, "Uploading document...", s.StatusMessage)
	assert.False(t, s.Terminal)
}

func TestTracker_StatusEvents(t *testing.T) {
	tests := []struct {
		name      string
		events    []channel.Event
		wantStage stage.ID
		wantPct   int
		wantMsg   string
	}{
		{
			name:      "catalog default percent and message",
			events:    []channel.Event{channel.StatusEvent{Stage: "EXTRACTING_TEXT"}},
			wantStage: stage.ExtractingText,
			wantPct:   30,
			wantMsg:   "Extracting text and images...",
		},
		{
			name:      "server values take precedence",
			events:    []channel.Event{channel.StatusEvent{Stage: "EXTRACTING_TEXT", Progress: pct(33), Message: "Reading page 2"}},
			wantStage: stage.ExtractingText,
			wantPct:   33,
			wantMsg:   "Reading page 2",
		},
		{
			name: "status may move to an earlier stage",
			events: []channel.Event{
				channel.StatusEvent{Stage: "CREATING_SLIDES"},
				channel.StatusEvent{Stage: "PROCESSING_SOURCE"},
			},
			wantStage: stage.ProcessingSource,
			wantPct:   15,
			wantMsg:   "Processing source document...",
		},
		{
			name: "progress for earlier stage is ignored",
			events: []channel.Event{
				channel.ProgressEvent{Stage: "CREATING_SLIDES", Progress: pct(62)},
				channel.ProgressEvent{Stage: "EXTRACTING_TEXT", Progress: pct(31)},
			},
			wantStage: stage.CreatingSlides,
			wantPct:   62,
			wantMsg:   "Creating slides...",
		},
		{
			name: "progress within a stage, last value wins",
			events: []channel.Event{
				channel.ProgressEvent{Stage: "CREATING_SLIDES", Progress: pct(70)},
				channel.ProgressEvent{Stage: "CREATING_SLIDES", Progress: pct(64)},
			},
			wantStage: stage.CreatingSlides,
			wantPct:   64,
			wantMsg:   "Creating slides...",
		},
		{
			name: "unknown stage keeps current stage and uses event message",
			events: []channel.Event{
				channel.StatusEvent{Stage: "FORMATTING_CONTENT"},
				channel.StatusEvent{Stage: "POLISHING", Message: "Polishing", Progress: pct(88)},
			},
			wantStage: stage.FormattingContent,
			wantPct:   88,
			wantMsg:   "Polishing",
		},
		{
			name: "unknown event type is ignored",
			events: []channel.Event{
				channel.StatusEvent{Stage: "FINALIZING"},
				channel.UnknownEvent{Type: "heartbeat"},
			},
			wantStage: stage.Finalizing,
			wantPct:   95,
			wantMsg:   "Finalizing presentation...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(&fakeClock{})
			for _, ev := range tt.events {
				tr.HandleEvent(ev)
			}

			s := tr.Status()
			assert.Equal(t, tt.wantStage, s.CurrentStage)
			assert.Equal(t, tt.wantPct, s.ProgressPercent)
			assert.Equal(t, tt.wantMsg, s.StatusMessage)
			assert.False(t, s.Terminal)
		})
	}
}

func TestTracker_CompleteWithURLWaitsForSettling(t *testing.T) {
	clock := &fakeClock{}
	var updates []JobStatus
	tr := newTestTracker(clock, WithListener(func(s JobStatus) { updates = append(updates, s) }))

	tr.HandleEvent(channel.StatusEvent{Stage: "FINALIZING"})
	tr.HandleEvent(channel.CompleteEvent{PresentationURL: "https://slides.example/p/1"})

	s := tr.Status()
	assert.False(t, s.Terminal)
	assert.True(t, s.Settling)
	assert.Empty(t, s.PresentationURL)
	select {
	case <-tr.Done():
		t.Fatal("done before settling delay")
	default:
	}

	timer := clock.last(t)
	assert.Equal(t, 2*time.Second, timer.delay)

	// Events during settling are ignored.
	tr.HandleEvent(channel.ErrorEvent{Message: "late"})
	assert.Empty(t, tr.Status().LastError)

	timer.fire()

	s = tr.Status()
	assert.True(t, s.Terminal)
	assert.False(t, s.Settling)
	assert.True(t, s.Succeeded())
	assert.Equal(t, stage.Complete, s.CurrentStage)
	assert.Equal(t, 100, s.ProgressPercent)
	assert.Equal(t, "https://slides.example/p/1", s.PresentationURL)
	<-tr.Done()

	require.NotEmpty(t, updates)
	assert.True(t, updates[len(updates)-1].Terminal)
}

func TestTracker_CompleteWithoutURLIsImmediate(t *testing.T) {
	clock := &fakeClock{}
	tr := newTestTracker(clock)

	tr.HandleEvent(channel.CompleteEvent{})

	s := tr.Status()
	assert.True(t, s.Terminal)
	assert.Equal(t, stage.Complete, s.CurrentStage)
	assert.Equal(t, 100, s.ProgressPercent)
	assert.Empty(t, clock.timers)
	<-tr.Done()
}

func TestTracker_EventsAfterTerminalIgnored(t *testing.T) {
	tr := newTestTracker(&fakeClock{})

	tr.HandleEvent(channel.CompleteEvent{})
	tr.HandleEvent(channel.StatusEvent{Stage: "UPLOADING"})
	tr.HandleFailure(domain.TransportError("dropped", nil))

	s := tr.Status()
	assert.Equal(t, stage.Complete, s.CurrentStage)
	assert.Empty(t, s.LastError)
}

func TestTracker_JobError(t *testing.T) {
	tr := newTestTracker(&fakeClock{})

	tr.HandleEvent(channel.StatusEvent{Stage: "CREATING_SLIDES"})
	tr.HandleEvent(channel.ErrorEvent{Message: "Erro: PDF protegido"})

	s := tr.Status()
	assert.True(t, s.Terminal)
	assert.False(t, s.Succeeded())
	assert.Equal(t, "Erro: PDF protegido", s.LastError)
	assert.Equal(t, stage.CreatingSlides, s.CurrentStage, "stage stays where it failed")
	assert.Equal(t, domain.ErrorTypeJob, s.ErrorKind)
	assert.False(t, s.Retryable)
	<-tr.Done()
}

func TestTracker_ChannelFailures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantMessage   string
		wantKind      domain.ErrorType
		wantRetryable bool
	}{
		{
			name:          "retries exhausted",
			err:           domain.TransportError("connection lost after 3 retries", channel.ErrRetriesExhausted),
			wantMessage:   TransportFailureMessage,
			wantKind:      domain.ErrorTypeTransport,
			wantRetryable: true,
		},
		{
			name:          "untyped error is treated as transport",
			err:           errors.New("eof"),
			wantMessage:   TransportFailureMessage,
			wantKind:      domain.ErrorTypeTransport,
			wantRetryable: true,
		},
		{
			name:          "protocol error",
			err:           domain.ProtocolError("failed to decode event", nil),
			wantMessage:   ProtocolFailureMessage,
			wantKind:      domain.ErrorTypeProtocol,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(&fakeClock{})
			tr.HandleEvent(channel.StatusEvent{Stage: "EXTRACTING_TEXT"})
			tr.HandleFailure(tt.err)

			s := tr.Status()
			assert.True(t, s.Terminal)
			assert.Equal(t, tt.wantMessage, s.LastError)
			assert.Equal(t, tt.wantKind, s.ErrorKind)
			assert.Equal(t, tt.wantRetryable, s.Retryable)
			assert.Equal(t, stage.ExtractingText, s.CurrentStage)
		})
	}
}

func TestTracker_SlidesSurviveFailure(t *testing.T) {
	tr := newTestTracker(&fakeClock{})
	deck := []domain.SlideRecord{{ID: "title-slide", Role: domain.RoleCover}, {ID: "slide-1", Role: domain.RoleContent}}

	tr.HandleEvent(channel.StatusEvent{Stage: "CREATING_SLIDES", Slides: deck})
	tr.HandleEvent(channel.ProgressEvent{Stage: "POPULATING_SLIDES"})
	tr.HandleFailure(domain.TransportError("dropped", nil))

	s := tr.Status()
	assert.True(t, s.Terminal)
	assert.Equal(t, deck, s.Slides)
}

func TestTracker_CloseCancelsSettling(t *testing.T) {
	clock := &fakeClock{}
	tr := newTestTracker(clock)

	tr.HandleEvent(channel.CompleteEvent{PresentationURL: "https://slides.example/p/1"})
	timer := clock.last(t)

	tr.Close()
	assert.True(t, timer.stopped)

	// A callback that raced the stop must not mutate the status.
	timer.fire()
	s := tr.Status()
	assert.False(t, s.Terminal)
	assert.Empty(t, s.PresentationURL)
	<-tr.Done()

	tr.Close()
}

func TestTracker_ClosedIgnoresEvents(t *testing.T) {
	tr := newTestTracker(&fakeClock{})
	tr.Close()

	tr.HandleEvent(channel.StatusEvent{Stage: "FINALIZING"})
	tr.HandleFailure(errors.New("dropped"))

	s := tr.Status()
	assert.Equal(t, stage.Uploading, s.CurrentStage)
	assert.False(t, s.Terminal)
}

// scriptConn replays payloads, then blocks until closed.
type scriptConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newScriptConn(payloads ...string) *scriptConn {
	c := &scriptConn{msgs: make(chan []byte, len(payloads)), closed: make(chan struct{})}
	for _, p := range payloads {
		c.msgs <- []byte(p)
	}
	return c
}

func (c *scriptConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestTracker_StartWithChannel(t *testing.T) {
	conn := newScriptConn(
		`{"type":"status","stage":"PROCESSING_SOURCE"}`,
		`{"type":"progress","stage":"CREATING_SLIDES","progress":60,"slides":[{"id":"title-slide","type":"cover","content":""}]}`,
		`{"type":"progress","stage":"EXTRACTING_TEXT","progress":31}`,
		`{"type":"complete","presentation_url":"https://slides.example/p/9"}`,
	)
	var dials atomic.Int32
	ch := channel.New(channel.DialerFunc(func(ctx context.Context, jobID string) (channel.Conn, error) {
		dials.Add(1)
		return conn, nil
	}), channel.DefaultConfig(), observability.Nop())

	tr := NewTracker("job-1", Config{SettlingDelay: 10 * time.Millisecond}, observability.Nop())
	require.NoError(t, tr.Start(context.Background(), ch))

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not finish")
	}

	s := tr.Status()
	assert.True(t, s.Succeeded())
	assert.Equal(t, "https://slides.example/p/9", s.PresentationURL)
	require.Len(t, s.Slides, 1)

	// The stream was closed when complete arrived, so it never redialled.
	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	assert.Equal(t, int32(1), dials.Load())

	again, err := ch.Open(context.Background(), "job-1", channel.Handlers{})
	require.NoError(t, err, "tracker released the job's stream")
	again.Close()
}

func TestTracker_StartPropagatesOpenError(t *testing.T) {
	ch := channel.New(channel.DialerFunc(func(ctx context.Context, jobID string) (channel.Conn, error) {
		return newScriptConn(), nil
	}), channel.DefaultConfig(), nil)
	first, err := ch.Open(context.Background(), "job-1", channel.Handlers{})
	require.NoError(t, err)
	defer first.Close()

	tr := NewTracker("job-1", DefaultConfig(), nil)
	assert.ErrorIs(t, tr.Start(context.Background(), ch), channel.ErrAlreadyOpen)
}
