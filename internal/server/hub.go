package server

import (
	"context"
	"sync"

	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/observability"
)

// Publisher fans encoded events out to an external broker. cache.RedisClient
// implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Hub keeps the event stream of every job. Each job retains a bounded
// backlog that is replayed to subscribers joining late or reconnecting.
type Hub struct {
	mu          sync.Mutex
	backlogSize int
	topics      map[string]*topic
	publisher   Publisher
	logger      *observability.Logger
}

type topic struct {
	backlog [][]byte
	subs    map[*Subscription]struct{}
}

// Subscription receives the payloads of one job.
type Subscription struct {
	C <-chan []byte

	ch    chan []byte
	hub   *Hub
	jobID string
	once  sync.Once
}

// NewHub creates a Hub. publisher may be nil.
func NewHub(backlogSize int, publisher Publisher, logger *observability.Logger) *Hub {
	if backlogSize < 0 {
		backlogSize = 0
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Hub{
		backlogSize: backlogSize,
		topics:      make(map[string]*topic),
		publisher:   publisher,
		logger:      logger.WithComponent("hub"),
	}
}

func (h *Hub) topicFor(jobID string) *topic {
	t, ok := h.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[jobID] = t
	}
	return t
}

// Publish appends msg to the job's backlog and delivers it to current
// subscribers. A subscriber whose buffer is full is dropped.
func (h *Hub) Publish(ctx context.Context, jobID string, msg channel.Message) error {
	payload, err := channel.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	t := h.topicFor(jobID)
	if h.backlogSize > 0 {
		t.backlog = append(t.backlog, payload)
		if over := len(t.backlog) - h.backlogSize; over > 0 {
			t.backlog = t.backlog[over:]
		}
	}
	for sub := range t.subs {
		select {
		case sub.ch <- payload:
		default:
			h.logger.Warn().Str("job_id", jobID).Msg("subscriber too slow, dropping")
			delete(t.subs, sub)
			close(sub.ch)
		}
	}
	h.mu.Unlock()

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, channel.EventTopic(jobID), payload); err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to publish event")
		}
	}
	return nil
}

// Subscribe returns a subscription primed with the job's backlog.
func (h *Hub) Subscribe(jobID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicFor(jobID)
	ch := make(chan []byte, h.backlogSize+32)
	for _, payload := range t.backlog {
		ch <- payload
	}
	sub := &Subscription{C: ch, ch: ch, hub: h, jobID: jobID}
	t.subs[sub] = struct{}{}
	return sub
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		t, ok := s.hub.topics[s.jobID]
		if !ok {
			return
		}
		if _, ok := t.subs[s]; ok {
			delete(t.subs, s)
			close(s.ch)
		}
	})
}

// Backlog returns a copy of the retained payloads of a job.
func (h *Hub) Backlog(jobID string) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[jobID]
	if !ok {
		return nil
	}
	return append([][]byte(nil), t.backlog...)
}

// Forget drops a job's backlog and closes its subscriptions.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[jobID]
	if !ok {
		return
	}
	for sub := range t.subs {
		close(sub.ch)
	}
	delete(h.topics, jobID)
}
