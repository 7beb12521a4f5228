package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/model"
	"github.com/rickgao/salon-queue/internal/router"
)

type fakeSub struct {
	topic   string
	handler router.Handler
}

// fakeLive is a scriptable LiveChannel. Like the real manager it drops all
// handlers when the status leaves connected.
type fakeLive struct {
	mu             sync.Mutex
	status         connection.Status
	watchers       map[chan connection.Status]struct{}
	subs           map[router.Handle]fakeSub
	subscribeCalls int
	connects       int
	resets         int
	onConnect      func(f *fakeLive)
	onReset        func(f *fakeLive)
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		status:   connection.StatusDisconnected,
		watchers: make(map[chan connection.Status]struct{}),
		subs:     make(map[router.Handle]fakeSub),
	}
}

func (f *fakeLive) set(s connection.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
	if s != connection.StatusConnected {
		f.subs = make(map[router.Handle]fakeSub)
	}
	for w := range f.watchers {
		select {
		case <-w:
		default:
		}
		w <- s
	}
}

func (f *fakeLive) Connect() {
	f.mu.Lock()
	f.connects++
	hook := f.onConnect
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
}

func (f *fakeLive) ResetFallback() {
	f.mu.Lock()
	f.resets++
	hook := f.onReset
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
}

func (f *fakeLive) Subscribe(topic string, h router.Handler) (router.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.status != connection.StatusConnected {
		return router.NilHandle, connection.ErrNotConnected
	}
	handle := router.Handle(uuid.New())
	f.subs[handle] = fakeSub{topic: topic, handler: h}
	return handle, nil
}

func (f *fakeLive) Unsubscribe(h router.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[h]; !ok {
		return false
	}
	delete(f.subs, h)
	return true
}

func (f *fakeLive) Status() connection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeLive) Watch() <-chan connection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan connection.Status, 1)
	ch <- f.status
	f.watchers[ch] = struct{}{}
	return ch
}

func (f *fakeLive) Unwatch(ch <-chan connection.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for w := range f.watchers {
		if w == ch {
			delete(f.watchers, w)
			close(w)
		}
	}
}

func (f *fakeLive) topicCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

func (f *fakeLive) handlers(topic string) []router.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hs []router.Handler
	for _, s := range f.subs {
		if s.topic == topic {
			hs = append(hs, s.handler)
		}
	}
	return hs
}

func (f *fakeLive) deliver(topic, payload string) {
	for _, h := range f.handlers(topic) {
		h([]byte(payload))
	}
}

func (f *fakeLive) subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// fakeSource is a scriptable Source.
type fakeSource struct {
	mu         sync.Mutex
	entries    []model.QueueEntry
	queueErr   error
	stats      *model.QueueStats
	statsErr   error
	gate       chan struct{} // Non-nil: GetQueue blocks until closed
	queueCalls int
	statsCalls int
}

func (s *fakeSource) GetQueue(ctx context.Context) ([]model.QueueEntry, error) {
	s.mu.Lock()
	s.queueCalls++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueErr != nil {
		return nil, s.queueErr
	}
	return model.CloneEntries(s.entries), nil
}

func (s *fakeSource) GetQueueStats(ctx context.Context) (*model.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsCalls++
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return model.CloneStats(s.stats), nil
}

func (s *fakeSource) setEntries(e ...model.QueueEntry) {
	s.mu.Lock()
	s.entries = e
	s.mu.Unlock()
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueCalls
}

func entry(id string, priority int) model.QueueEntry {
	return model.QueueEntry{
		ID:          id,
		Status:      model.StatusWaiting,
		Channel:     model.ChannelInStore,
		CheckedInAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Priority:    priority,
	}
}

func ids(entries []model.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// queuePayload renders (id, priority) pairs as a wire snapshot.
func queuePayload(pairs ...any) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf(
			`{"id":%q,"status":"WAITING","checkInTime":"2025-03-01T09:00:00Z","priority":%d}`,
			pairs[i], pairs[i+1]))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AutoStart = false
	cfg.PollingInterval = 20 * time.Millisecond
	cfg.RefreshTimeout = time.Second
	return cfg
}

func startCoordinator(t *testing.T, cfg Config, live LiveChannel, src Source, opts ...Option) *Coordinator {
	t.Helper()
	c := New(cfg, live, src, nil, opts...)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Close(ctx)
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
