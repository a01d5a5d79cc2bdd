// Package events streams per-request pipeline progress to subscribers. Each
// request owns an independent broadcast stream keyed by request ID; the
// stream's lifetime is bound to the pipeline run, not to subscriber
// behavior, and is torn down deterministically on the terminal event.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Stage identifies a pipeline stage transition.
type Stage string

const (
	StageStarted    Stage = "started"
	StageCacheHit   Stage = "cache_hit"
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageParsing    Stage = "parsing"
	StageSanitizing Stage = "sanitizing"
	StageCaching    Stage = "caching"
	StagePricing    Stage = "pricing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Event is one progress record for a request.
type Event struct {
	RequestID string    `json:"requestId"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Payload   any       `json:"payload,omitempty"`
	Complete  bool      `json:"isComplete,omitempty"`
	Error     bool      `json:"isError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether this event closes the request's stream.
func (e Event) Terminal() bool {
	return e.Complete || e.Error
}

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 64

// Publisher is the cross-request registry of event streams. Safe for
// concurrent use.
type Publisher struct {
	mu      sync.Mutex
	streams map[string]*stream
	bufSize int
	logger  *slog.Logger
}

type stream struct {
	subs   map[int]chan Event
	nextID int
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithLogger sets the logger for dropped-event warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates an empty registry.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		streams: make(map[string]*stream),
		bufSize: DefaultBufferSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers an event to every current subscriber of its request.
// Events for one request are delivered in publish order. A terminal event
// closes all subscriber channels and removes the stream.
func (p *Publisher) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.streams[ev.RequestID]
	if !ok {
		if ev.Terminal() {
			return // nobody ever subscribed; nothing to tear down
		}
		st = &stream{subs: make(map[int]chan Event)}
		p.streams[ev.RequestID] = st
	}

	for id, ch := range st.subs {
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop rather than block the pipeline.
			p.logger.Warn("Dropping event for slow subscriber",
				"request_id", ev.RequestID,
				"stage", ev.Stage,
				"subscriber", id)
		}
	}

	if ev.Terminal() {
		for _, ch := range st.subs {
			close(ch)
		}
		delete(p.streams, ev.RequestID)
	}
}

// Subscribe attaches to a request's stream. The returned channel receives
// events published after this call and is closed by the terminal event.
// The cancel func detaches early; it is safe to call more than once.
func (p *Publisher) Subscribe(requestID string) (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.streams[requestID]
	if !ok {
		st = &stream{subs: make(map[int]chan Event)}
		p.streams[requestID] = st
	}

	id := st.nextID
	st.nextID++
	ch := make(chan Event, p.bufSize)
	st.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		cur, ok := p.streams[requestID]
		if !ok || cur != st {
			return // stream already torn down by a terminal event
		}
		if sub, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(sub)
		}
		if len(st.subs) == 0 {
			delete(p.streams, requestID)
		}
	}

	return ch, cancel
}

// ActiveStreams returns the number of live request streams.
func (p *Publisher) ActiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}
