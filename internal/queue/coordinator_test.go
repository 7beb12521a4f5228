package queue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/salon-queue/internal/api"
	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/model"
)

func TestCoordinator_StartsInCurrentMode(t *testing.T) {
	t.Run("fallback", func(t *testing.T) {
		live := newFakeLive()
		live.status = connection.StatusFallback
		src := &fakeSource{}

		c := startCoordinator(t, testConfig(), live, src)

		waitFor(t, "poller", c.PollingActive)
		if c.LiveActive() {
			t.Error("LiveActive() = true in fallback")
		}
		if !c.View().UsingFallback {
			t.Error("UsingFallback = false in fallback")
		}
	})

	t.Run("connected", func(t *testing.T) {
		live := newFakeLive()
		live.status = connection.StatusConnected
		src := &fakeSource{}

		c := startCoordinator(t, testConfig(), live, src)

		waitFor(t, "subscriptions", c.LiveActive)
		if live.topicCount("/topic/queue") != 1 || live.topicCount("/topic/queue/stats") != 1 {
			t.Error("expected one subscription per topic")
		}
		if c.PollingActive() {
			t.Error("PollingActive() = true while connected")
		}
	})
}

func TestCoordinator_AutoStartConnects(t *testing.T) {
	live := newFakeLive()
	cfg := testConfig()
	cfg.AutoStart = true

	startCoordinator(t, cfg, live, &fakeSource{})

	live.mu.Lock()
	defer live.mu.Unlock()
	if live.connects != 1 {
		t.Errorf("connects = %d, want 1", live.connects)
	}
}

func TestCoordinator_ConnectedPullsOnce(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	src.setEntries(entry("b", 2), entry("a", 1))

	c := startCoordinator(t, testConfig(), live, src)
	live.set(connection.StatusConnected)

	waitFor(t, "initial pull", func() bool { return len(c.View().Entries) == 2 })

	v := c.View()
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("entries = %v, want [a b] (canonical order)", got)
	}
	if v.Source != OriginPull {
		t.Errorf("Source = %q, want pull", v.Source)
	}
	if src.calls() != 1 {
		t.Errorf("queue pulls = %d, want 1", src.calls())
	}
}

func TestCoordinator_ExclusiveModes(t *testing.T) {
	live := newFakeLive()
	c := startCoordinator(t, testConfig(), live, &fakeSource{})

	var violations atomic.Int32
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if l, p := c.Mode(); l && p {
				violations.Add(1)
			}
		}
	}()

	for i := 0; i < 30; i++ {
		live.set(connection.StatusConnected)
		waitFor(t, "live", c.LiveActive)
		live.set(connection.StatusReconnecting)
		live.set(connection.StatusFallback)
		waitFor(t, "polling", c.PollingActive)
	}
	close(stop)
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Errorf("live and polling were both active %d times", n)
	}
}

func TestCoordinator_NoGapOnFallback(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return src.calls() == 1 })

	live.deliver("/topic/queue", queuePayload("A", 1, "B", 2))
	waitFor(t, "push applied", func() bool { return len(c.View().Entries) == 2 })

	gate := make(chan struct{})
	src.mu.Lock()
	src.gate = gate
	src.entries = []model.QueueEntry{entry("C", 1)}
	src.mu.Unlock()

	live.set(connection.StatusFallback)
	waitFor(t, "poll in flight", func() bool { return src.calls() == 2 })

	v := c.View()
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("entries during switch = %v, want [A B]", got)
	}
	if !v.Loading {
		t.Error("Loading = false while poll in flight")
	}

	close(gate)
	waitFor(t, "poll applied", func() bool {
		return reflect.DeepEqual(ids(c.View().Entries), []string{"C"})
	})
}

func TestCoordinator_SnapshotReplacement(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return !c.View().Loading && src.calls() == 1 })

	live.deliver("/topic/queue", queuePayload("A", 1, "B", 2, "C", 3))
	live.deliver("/topic/queue", queuePayload("B", 2, "D", 4))

	if got := ids(c.View().Entries); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("entries after push = %v, want [B D]", got)
	}

	src.setEntries(entry("E", 1))
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := ids(c.View().Entries); !reflect.DeepEqual(got, []string{"E"}) {
		t.Errorf("entries after pull = %v, want [E]", got)
	}
}

func TestCoordinator_RefreshIsModeAgnostic(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return src.calls() == 1 && !c.View().Loading })
	subs := live.subscribes()

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if src.calls() != 2 {
		t.Errorf("queue pulls = %d, want 2", src.calls())
	}
	if live.subscribes() != subs {
		t.Errorf("Refresh subscribed again: %d -> %d", subs, live.subscribes())
	}
	if !c.LiveActive() || c.PollingActive() {
		t.Errorf("mode changed: live=%v polling=%v", c.LiveActive(), c.PollingActive())
	}
	if live.topicCount("/topic/queue") != 1 {
		t.Errorf("queue subscriptions = %d, want 1", live.topicCount("/topic/queue"))
	}
}

func TestCoordinator_MalformedPushTolerated(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return src.calls() == 1 && !c.View().Loading })

	live.deliver("/topic/queue", queuePayload("A", 1))
	live.deliver("/topic/queue/stats", `{"totalWaiting":1,"averageWaitTime":4}`)
	before := c.View()

	live.deliver("/topic/queue", `not json at all`)
	live.deliver("/topic/queue", `[{"id":"X","status":"TELEPORTED"}]`)
	live.deliver("/topic/queue/stats", `{"oops":true}`)

	after := c.View()
	if !reflect.DeepEqual(ids(after.Entries), ids(before.Entries)) {
		t.Errorf("entries changed: %v -> %v", ids(before.Entries), ids(after.Entries))
	}
	if after.Stats == nil || after.Stats.TotalWaiting != 1 {
		t.Errorf("stats changed: %+v", after.Stats)
	}
	if after.LastError != "" {
		t.Errorf("LastError = %q, want empty", after.LastError)
	}

	// Stats stay independent of a bad queue frame.
	live.deliver("/topic/queue/stats", `{"totalWaiting":5,"averageWaitTime":9}`)
	if c.View().Stats.TotalWaiting != 5 {
		t.Error("stats push not applied after malformed queue push")
	}
}

func TestCoordinator_StatsForbiddenIsSoft(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{statsErr: &api.APIError{StatusCode: 403, Message: "Forbidden"}}
	src.setEntries(entry("A", 1), entry("B", 2))
	c := startCoordinator(t, testConfig(), live, src)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error = %v, want nil", err)
	}

	v := c.View()
	if len(v.Entries) != 2 {
		t.Errorf("entries = %v, want 2", ids(v.Entries))
	}
	if v.Stats != nil {
		t.Errorf("Stats = %+v, want nil", v.Stats)
	}
	if v.LastError != "" {
		t.Errorf("LastError = %q, want empty", v.LastError)
	}
	if v.Loading {
		t.Error("Loading = true after Refresh")
	}
}

func TestCoordinator_QueueFailureKeepsView(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	src.setEntries(entry("A", 1))
	c := startCoordinator(t, testConfig(), live, src)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	src.mu.Lock()
	src.queueErr = errors.New("get queue: salon api error 503: Service Unavailable")
	src.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh should return the queue error")
	}

	v := c.View()
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("entries = %v, want [A] preserved", got)
	}
	if v.LastError != "get queue: salon api error 503: Service Unavailable" {
		t.Errorf("LastError = %q", v.LastError)
	}
	if v.Loading {
		t.Error("Loading = true after failed Refresh")
	}

	src.mu.Lock()
	src.queueErr = nil
	src.mu.Unlock()
	c.Refresh(context.Background())
	if c.View().LastError != "" {
		t.Error("LastError not cleared by a successful pull")
	}
}

func TestCoordinator_PushDuringPullWins(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return src.calls() == 1 && !c.View().Loading })

	gate := make(chan struct{})
	src.mu.Lock()
	src.gate = gate
	src.entries = []model.QueueEntry{entry("OLD", 1)}
	src.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- c.Refresh(context.Background()) }()
	waitFor(t, "refresh in flight", func() bool { return src.calls() == 2 })

	live.deliver("/topic/queue", queuePayload("NEW", 1))
	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	v := c.View()
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"NEW"}) {
		t.Errorf("entries = %v, want [NEW] (push newer than pull)", got)
	}
	if v.Source != OriginPush {
		t.Errorf("Source = %q, want push", v.Source)
	}
}

func TestCoordinator_ReleasedHandlerIgnored(t *testing.T) {
	live := newFakeLive()
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "initial pull", func() bool { return src.calls() == 1 && !c.View().Loading })
	stale := live.handlers("/topic/queue")[0]

	live.set(connection.StatusFallback)
	waitFor(t, "polling", c.PollingActive)
	waitFor(t, "poll done", func() bool { return !c.View().Loading })

	stale([]byte(queuePayload("GHOST", 1)))
	for _, id := range ids(c.View().Entries) {
		if id == "GHOST" {
			t.Fatal("frame applied after its subscription was released")
		}
	}
}

func TestCoordinator_RetryWebSocket(t *testing.T) {
	live := newFakeLive()
	live.status = connection.StatusFallback
	live.onReset = func(f *fakeLive) { f.set(connection.StatusConnecting) }
	src := &fakeSource{}
	c := startCoordinator(t, testConfig(), live, src)

	waitFor(t, "polling", c.PollingActive)

	if err := c.RetryWebSocket(context.Background()); err != nil {
		t.Fatalf("RetryWebSocket failed: %v", err)
	}
	if c.PollingActive() {
		t.Error("poller still running after RetryWebSocket")
	}
	live.mu.Lock()
	resets := live.resets
	live.mu.Unlock()
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}

	live.set(connection.StatusConnected)
	waitFor(t, "live", c.LiveActive)
}

func TestCoordinator_RetryWebSocketCancelsPollQuietly(t *testing.T) {
	live := newFakeLive()
	live.status = connection.StatusFallback
	src := &fakeSource{}
	src.setEntries(entry("A", 1))
	c := startCoordinator(t, testConfig(), live, src)

	waitFor(t, "first poll", func() bool { return len(c.View().Entries) == 1 && !c.View().Loading })

	gate := make(chan struct{})
	defer close(gate)
	src.mu.Lock()
	src.gate = gate
	src.mu.Unlock()
	polls := src.calls()
	waitFor(t, "poll in flight", func() bool { return src.calls() > polls })

	if err := c.RetryWebSocket(context.Background()); err != nil {
		t.Fatalf("RetryWebSocket failed: %v", err)
	}

	v := c.View()
	if v.LastError != "" {
		t.Errorf("LastError = %q, want empty after a cancelled poll", v.LastError)
	}
	if v.Loading {
		t.Error("Loading = true after the poll was cancelled")
	}
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("entries = %v, want [A] preserved", got)
	}
}

func TestCoordinator_Close(t *testing.T) {
	live := newFakeLive()
	live.status = connection.StatusConnected
	gate := make(chan struct{})
	src := &fakeSource{gate: gate}
	c := New(testConfig(), live, src, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "live", c.LiveActive)
	waitFor(t, "pull in flight", func() bool { return src.calls() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(gate)

	if c.LiveActive() || c.PollingActive() {
		t.Error("sources still active after Close")
	}
	if live.topicCount("/topic/queue")+live.topicCount("/topic/queue/stats") != 0 {
		t.Error("subscriptions left behind")
	}
	if len(c.View().Entries) != 0 {
		t.Error("pull result applied after Close")
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh after Close = %v, want ErrClosed", err)
	}
	if err := c.RetryWebSocket(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("RetryWebSocket after Close = %v, want ErrClosed", err)
	}

	// Status changes after Close are ignored.
	live.set(connection.StatusFallback)
	time.Sleep(30 * time.Millisecond)
	if c.PollingActive() {
		t.Error("poller started after Close")
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

type memStore struct {
	snap *Snapshot
	err  error
}

func (m *memStore) Load(context.Context) (*Snapshot, error) { return m.snap, m.err }

func TestCoordinator_WarmStart(t *testing.T) {
	longest := 40
	store := &memStore{snap: &Snapshot{
		Entries: []model.QueueEntry{entry("Z", 9), entry("Y", 1)},
		Stats:   &model.QueueStats{TotalWaiting: 2, AverageWait: 15, LongestWait: &longest},
		SavedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}}
	c := startCoordinator(t, testConfig(), newFakeLive(), &fakeSource{}, WithSnapshotStore(store))

	v := c.View()
	if got := ids(v.Entries); !reflect.DeepEqual(got, []string{"Y", "Z"}) {
		t.Errorf("entries = %v, want [Y Z]", got)
	}
	if v.Source != OriginCache {
		t.Errorf("Source = %q, want cache", v.Source)
	}
	if v.Stats == nil || *v.Stats.LongestWait != 40 {
		t.Errorf("Stats = %+v", v.Stats)
	}
}

func TestCoordinator_WarmStartFailureIgnored(t *testing.T) {
	store := &memStore{err: errors.New("redis down")}
	c := startCoordinator(t, testConfig(), newFakeLive(), &fakeSource{}, WithSnapshotStore(store))

	if v := c.View(); len(v.Entries) != 0 || v.LastError != "" {
		t.Errorf("view = %+v, want empty without error", v)
	}
}

func TestCoordinator_Observer(t *testing.T) {
	var mu sync.Mutex
	var last View
	obs := ObserverFunc(func(v View) {
		mu.Lock()
		last = v
		mu.Unlock()
	})

	src := &fakeSource{}
	src.setEntries(entry("A", 1))
	c := startCoordinator(t, testConfig(), newFakeLive(), src, WithObserver(obs))

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitFor(t, "observer", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last.Entries) == 1 && !last.Loading
	})
}
