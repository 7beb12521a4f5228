package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	topic   string
	handler Handler
}

// Router is a concurrency-safe topic -> handlers table.
type Router struct {
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[Handle]entry
	byTopic map[string][]Handle // Registration order

	// Stats (guarded by statsMu)
	statsMu     sync.Mutex
	received    int64
	routed      int64
	parseErrors int64
	unrouted    int64
	panics      int64
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:  logger,
		handles: make(map[Handle]entry),
		byTopic: make(map[string][]Handle),
	}
}

// Add registers handler for topic. first is true when topic had no handlers before.
func (r *Router) Add(topic string, handler Handler) (h Handle, first bool) {
	h = Handle(uuid.New())

	r.mu.Lock()
	defer r.mu.Unlock()

	first = len(r.byTopic[topic]) == 0
	r.handles[h] = entry{topic: topic, handler: handler}
	r.byTopic[topic] = append(r.byTopic[topic], h)
	return h, first
}

// Remove releases h. last is true when its topic has no handlers left.
// ok is false if h was unknown (already released or reset).
func (r *Router) Remove(h Handle) (topic string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.handles[h]
	if !found {
		return "", false, false
	}
	delete(r.handles, h)

	hs := r.byTopic[e.topic]
	for i, other := range hs {
		if other == h {
			hs = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(r.byTopic, e.topic)
		return e.topic, true, true
	}
	r.byTopic[e.topic] = hs
	return e.topic, false, true
}

// Reset drops every handler and returns how many were dropped.
func (r *Router) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.handles)
	r.handles = make(map[Handle]entry)
	r.byTopic = make(map[string][]Handle)
	return n
}

// Topics returns the topics with at least one handler, sorted.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.byTopic))
	for t := range r.byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch decodes a frame and delivers its payload to the topic's handlers.
// Handlers are called outside the lock on a snapshot of the registration list.
func (r *Router) Dispatch(data []byte) error {
	r.statsMu.Lock()
	r.received++
	r.statsMu.Unlock()

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		r.countParseError()
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Topic == "" {
		return ErrNoTopic
	}

	r.mu.RLock()
	hs := r.byTopic[f.Topic]
	handlers := make([]Handler, 0, len(hs))
	for _, h := range hs {
		handlers = append(handlers, r.handles[h].handler)
	}
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.statsMu.Lock()
		r.unrouted++
		r.statsMu.Unlock()
		r.logger.Debug("no handler for topic", "topic", f.Topic)
		return nil
	}

	for _, handler := range handlers {
		r.call(f.Topic, handler, f.Msg)
	}

	r.statsMu.Lock()
	r.routed++
	r.statsMu.Unlock()
	return nil
}

func (r *Router) call(topic string, handler Handler, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.statsMu.Lock()
			r.panics++
			r.statsMu.Unlock()
			r.logger.Error("topic handler panicked", "topic", topic, "panic", p)
		}
	}()
	handler(payload)
}

func (r *Router) countParseError() {
	r.statsMu.Lock()
	r.parseErrors++
	r.statsMu.Unlock()
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	handlers := len(r.handles)
	topics := len(r.byTopic)
	r.mu.RUnlock()

	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	return Stats{
		Received:    r.received,
		Routed:      r.routed,
		ParseErrors: r.parseErrors,
		Unrouted:    r.unrouted,
		Panics:      r.panics,
		Handlers:    handlers,
		Topics:      topics,
	}
}
