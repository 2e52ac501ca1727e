package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/mcdev12/partygames/go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	mu    sync.Mutex
	snaps []Snapshot
	calls int
}

func (s *staticSource) Snapshots(ctx context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]Snapshot(nil), s.snaps...), nil
}

func (s *staticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memorySink struct {
	name    string
	failFor int

	mu    sync.Mutex
	saved []Snapshot
	tries int
	err   error
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Save(ctx context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tries++
	if m.tries <= m.failFor {
		return errors.New("sink unavailable")
	}
	m.saved = append(m.saved, s)
	return nil
}

func (m *memorySink) Saved() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.saved...)
}

func (m *memorySink) Ping(ctx context.Context) error { return m.err }

func snap(id string) Snapshot {
	return Snapshot{SessionID: id, Variant: models.VariantVoting, Payload: json.RawMessage(`{"id":"` + id + `"}`)}
}

func TestWorkerFlushesOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &staticSource{snaps: []Snapshot{snap("a"), snap("b")}}
	sink := &memorySink{name: "memory"}
	metrics := NewMemoryMetrics()

	cfg := DefaultConfig()
	w := NewWorker(source, []Sink{sink}, cfg, clock, metrics)
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start")

	clock.Advance(cfg.Interval)
	require.Eventually(t, func() bool { return len(sink.Saved()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.Len(t, sink.Saved(), 4, "stop runs a final flush")
	assert.Error(t, w.Stop())

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Passes)
	assert.Equal(t, uint64(4), stats.Saved)
	assert.False(t, stats.Running)
	assert.Equal(t, uint64(4), metrics.Sinks()["memory"].Saves)
}

func TestWorkerRetriesSink(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &staticSource{snaps: []Snapshot{snap("a")}}
	sink := &memorySink{name: "flaky", failFor: 1}

	cfg := DefaultConfig()
	w := NewWorker(source, []Sink{sink}, cfg, clock, nil)

	done := make(chan int)
	go func() { done <- w.Flush(context.Background()) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(cfg.RetryDelay)

	select {
	case saved := <-done:
		assert.Equal(t, 1, saved)
	case <-time.After(time.Second):
		t.Fatal("flush did not finish")
	}
	assert.Len(t, sink.Saved(), 1)
}

func TestWorkerCountsFailures(t *testing.T) {
	source := &staticSource{snaps: []Snapshot{snap("a")}}
	good := &memorySink{name: "good"}
	bad := &memorySink{name: "bad", failFor: 100}

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	w := NewWorker(source, []Sink{good, bad}, cfg, clockwork.NewFakeClock(), nil)

	assert.Equal(t, 0, w.Flush(context.Background()))
	assert.Len(t, good.Saved(), 1, "one failing sink does not block the others")
	assert.Equal(t, uint64(1), w.Stats().Failed)
}

func TestFileSinkWritesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	s := snap("room-1")

	require.NoError(t, sink.Save(context.Background(), s))
	path := sink.Path(s)
	assert.Equal(t, dir+"/games/never-have-i-ever/room-1.json", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"room-1"}`, string(data))

	// Unchanged payloads are not rewritten.
	require.NoError(t, os.Remove(path))
	require.NoError(t, sink.Save(context.Background(), s))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	s.Payload = json.RawMessage(`{"id":"room-1","round":2}`)
	require.NoError(t, sink.Save(context.Background(), s))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"room-1","round":2}`, string(data))
}

func TestFileSinkSanitizesIDs(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	s := snap("../../etc/passwd")
	require.NoError(t, sink.Save(context.Background(), s))
	assert.Equal(t, dir+"/games/never-have-i-ever/_2e_2e_2f_2e_2e_2fetc_2fpasswd.json", sink.Path(s))
}

func TestSnapshotNamesAreDistinct(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	js := &JetStreamSink{config: DefaultJetStreamConfig()}

	paths := map[string]string{}
	subjects := map[string]string{}
	for _, id := range []string{"a.b", "a_b", "a b", "ab", "a_2eb", ""} {
		s := snap(id)
		path, subject := sink.Path(s), js.Subject(s)
		assert.NotContains(t, paths, path, "id %q collides with %q", id, paths[path])
		assert.NotContains(t, subjects, subject, "id %q collides with %q", id, subjects[subject])
		paths[path] = id
		subjects[subject] = id
	}
	assert.Equal(t, "games.snapshots.never-have-i-ever.a_2eb", js.Subject(snap("a.b")))
}

func TestHealthChecker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &staticSource{}
	sink := &memorySink{name: "memory"}
	w := NewWorker(source, []Sink{sink}, DefaultConfig(), clock, nil)
	h := NewHealthChecker(w, []Sink{sink}, NewMemoryMetrics(), clock, time.Minute)

	status := h.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Errors, "snapshot worker not running")

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.True(t, h.Check(context.Background()).Healthy)

	sink.err = errors.New("connection refused")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Sinks["memory"].Connected)
	assert.Equal(t, "connection refused", body.Sinks["memory"].Error)
}

func TestStoreSourceSkipsEmptySessions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cat := catalog.New(catalog.Categories{"food": {Prompts: []string{"q1"}}}, nil)
	store := session.NewStore(context.Background(), game.DefaultRegistry(game.DefaultConfig(), cat, clock), timer.NewScheduler(clock), discard{}, clock)
	defer store.Close()

	for _, id := range []string{"active", "idle"} {
		sess, _, err := store.GetOrCreate(id, models.VariantVoting)
		require.NoError(t, err)
		err = sess.Do(context.Background(), "", func(g game.Game) (models.Outcome, error) {
			return g.Handle(models.Action{
				Op:       models.OpJoinGame,
				PlayerID: "p1",
				Payload:  json.RawMessage(`{"op":"join_game","create":true,"playername":"Pat"}`),
			})
		})
		require.NoError(t, err)
		if id == "idle" {
			require.NoError(t, sess.Do(context.Background(), "", func(g game.Game) (models.Outcome, error) {
				return g.Disconnect("p1"), nil
			}))
		}
	}

	snaps, err := NewStoreSource(store, clock).Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "active", snaps[0].SessionID)
	assert.Equal(t, models.VariantVoting, snaps[0].Variant)

	var state map[string]any
	require.NoError(t, json.Unmarshal(snaps[0].Payload, &state))
	assert.Contains(t, state, "data", "snapshots carry the full state")
}

type discard struct{}

func (discard) Publish(string, string, []models.Event) {}
