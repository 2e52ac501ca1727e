package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id        string
	playerID  string
	sessionID string
	variant   models.Variant

	mu        sync.Mutex
	frames    [][]byte
	full      bool
	closed    bool
	closeCode int
}

func newFakeClient(id, sessionID, playerID string, variant models.Variant) *fakeClient {
	return &fakeClient{id: id, sessionID: sessionID, playerID: playerID, variant: variant}
}

func (c *fakeClient) ID() string              { return c.id }
func (c *fakeClient) PlayerID() string        { return c.playerID }
func (c *fakeClient) SessionID() string       { return c.sessionID }
func (c *fakeClient) Variant() models.Variant { return c.variant }

func (c *fakeClient) Enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.frames = append(c.frames, msg)
	return true
}

func (c *fakeClient) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
	}
}

func (c *fakeClient) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeClient) CloseCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closed
}

// receivedEvent decodes the fields tests look at.
type receivedEvent struct {
	Op        string          `json:"op"`
	Game      json.RawMessage `json:"game"`
	Message   string          `json:"message"`
	Code      string          `json:"code"`
	Operation string          `json:"operation"`
	Vote      string          `json:"vote"`
}

func (c *fakeClient) Events(t *testing.T) []receivedEvent {
	t.Helper()
	var out []receivedEvent
	for _, f := range c.Frames() {
		var ev receivedEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *fakeClient) Ops(t *testing.T) []string {
	t.Helper()
	var ops []string
	for _, ev := range c.Events(t) {
		ops = append(ops, ev.Op)
	}
	return ops
}
