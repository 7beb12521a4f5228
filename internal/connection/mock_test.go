package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errDialRefused = errors.New("dial refused")

// mockClient is an in-memory Client.
type mockClient struct {
	cfg        ClientConfig
	connectErr error
	release    chan struct{} // Non-nil: Connect blocks until closed or ctx done

	messages chan TimestampedMessage
	errors   chan error

	mu        sync.Mutex
	sent      [][]byte
	sendGate  chan struct{} // Non-nil: Send blocks until closed
	sending   int
	connected bool
	closed    bool
}

func (c *mockClient) Connect(ctx context.Context) error {
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *mockClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *mockClient) Send(data []byte) error {
	c.mu.Lock()
	gate := c.sendGate
	c.sending++
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending--
	if !c.connected {
		return ErrNotConnected
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *mockClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *mockClient) Errors() <-chan error                { return c.errors }

func (c *mockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *mockClient) blockSends() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendGate = make(chan struct{})
	return c.sendGate
}

func (c *mockClient) inSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending > 0
}

func (c *mockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockClient) commands(t *testing.T) []Command {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds := make([]Command, 0, len(c.sent))
	for _, data := range c.sent {
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Fatalf("bad command frame %q: %v", data, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (c *mockClient) push(data string) {
	c.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

// mockDialer hands out mockClients. plan(n) decides the outcome of attempt n
// (counted from 1).
type mockDialer struct {
	mu      sync.Mutex
	plan    func(n int) (block bool, err error)
	clients []*mockClient
}

func (d *mockDialer) factory(cfg ClientConfig, _ *slog.Logger) Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &mockClient{
		cfg:      cfg,
		messages: make(chan TimestampedMessage, 16),
		errors:   make(chan error, 1),
	}
	if d.plan != nil {
		block, err := d.plan(len(d.clients) + 1)
		c.connectErr = err
		if block {
			c.release = make(chan struct{})
		}
	}
	d.clients = append(d.clients, c)
	return c
}

func (d *mockDialer) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *mockDialer) last() *mockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

func alwaysFail(int) (bool, error) { return false, errDialRefused }

func failFirst(n int) func(int) (bool, error) {
	return func(attempt int) (bool, error) {
		if attempt <= n {
			return false, errDialRefused
		}
		return false, nil
	}
}

func testManagerConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.WSURL = "ws://test.invalid/ws"
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 4 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, d *mockDialer) *Manager {
	t.Helper()
	m := NewManager(testManagerConfig(), nil, WithClientFactory(d.factory))
	t.Cleanup(func() { m.Close() })
	return m
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

func waitStatus(t *testing.T, m *Manager, want Status) {
	t.Helper()
	waitFor(t, "status "+string(want), func() bool { return m.Status() == want })
}
