package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/mcdev12/partygames/go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

type published struct {
	SessionID string
	Origin    string
	Ops       []string
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []published
}

func (p *recordingPublisher) Publish(sessionID, origin string, events []models.Event) {
	out := models.Outcome{Events: events}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{SessionID: sessionID, Origin: origin, Ops: out.Ops()})
}

func (p *recordingPublisher) Calls() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.calls...)
}

// counterGame counts handled actions and arms a "tick" timer on "arm".
type counterGame struct {
	id      string
	variant models.Variant
	count   int
	round   int
	players map[string]bool
}

func (g *counterGame) ID() string              { return g.id }
func (g *counterGame) Variant() models.Variant { return g.variant }

func (g *counterGame) Handle(a models.Action) (models.Outcome, error) {
	var out models.Outcome
	switch a.Op {
	case "inc":
		g.count++
		g.players[a.PlayerID] = true
		out.Emit(models.GameState(g.count))
	case "arm":
		g.round++
		out.Arm("tick", 5*time.Second, g.round)
	case "disarm":
		out.Disarm("tick")
	case "boom":
		panic("boom")
	default:
		return out, gameerr.InvalidOperation(a.Op, "unsupported")
	}
	return out, nil
}

func (g *counterGame) Fire(f models.Fire) models.Outcome {
	var out models.Outcome
	if f.Slot != "tick" || f.Round != g.round {
		return out
	}
	out.Emit(models.RoundTimeout("tick"))
	return out
}

func (g *counterGame) Disconnect(playerID string) models.Outcome {
	g.players[playerID] = false
	return models.Outcome{}
}

func (g *counterGame) HasPlayer(id string) bool { _, ok := g.players[id]; return ok }

func (g *counterGame) ConnectedPlayers() int {
	n := 0
	for _, c := range g.players {
		if c {
			n++
		}
	}
	return n
}

func (g *counterGame) View() any { return g.count }

func (g *counterGame) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int{"count": g.count})
}

type fixture struct {
	clock *clockwork.FakeClock
	pub   *recordingPublisher
	store *session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := game.NewRegistry()
	for _, v := range []models.Variant{models.VariantVoting, models.VariantJudging} {
		v := v
		reg.Register(v, func(id string) game.Game {
			return &counterGame{id: id, variant: v, players: map[string]bool{}}
		})
	}
	pub := &recordingPublisher{}
	store := session.NewStore(context.Background(), reg, timer.NewScheduler(clock), pub, clock)
	t.Cleanup(store.Close)
	return &fixture{clock: clock, pub: pub, store: store}
}

func handle(op, player string) session.Handler {
	return func(g game.Game) (models.Outcome, error) {
		return g.Handle(models.Action{Op: op, PlayerID: player})
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		seen    = map[*session.Session]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, ok, err := f.store.GetOrCreate("room", models.VariantVoting)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			seen[sess] = true
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, f.store.Len())
}

func TestGetOrCreateKeepsExistingVariant(t *testing.T) {
	f := newFixture(t)

	first, created, err := f.store.GetOrCreate("room", models.VariantJudging)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, models.VariantJudging, second.Variant())
}

func TestGetOrCreateUnknownVariant(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.store.GetOrCreate("room", models.Variant("charades"))
	assert.True(t, errors.Is(err, gameerr.ErrValidation))
	_, ok := f.store.Get("room")
	assert.False(t, ok)
}

func TestDoSerializesActions(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.Do(context.Background(), "conn", handle("inc", "p1")))
		}()
	}
	wg.Wait()

	payload, connected, err := sess.Snapshot(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":50}`, string(payload))
	assert.Equal(t, 1, connected)

	calls := f.pub.Calls()
	require.Len(t, calls, n)
	for _, c := range calls {
		assert.Equal(t, "room", c.SessionID)
		assert.Equal(t, "conn", c.Origin)
		assert.Equal(t, []string{models.OpGameState}, c.Ops)
	}
}

func TestDoWaitsForQueuedJobPastDeadline(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- sess.Do(ctx, "conn", func(g game.Game) (models.Outcome, error) {
			close(started)
			<-release
			return handle("inc", "p1")(g)
		})
	}()

	<-started
	cancel()
	select {
	case err := <-result:
		t.Fatalf("Do returned %v before the queued job finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Do did not return")
	}
	require.Len(t, f.pub.Calls(), 1, "the applied action is published")
}

func TestDoErrorPublishesNothing(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	err = sess.Do(context.Background(), "conn", handle("dance", "p1"))
	assert.True(t, errors.Is(err, gameerr.ErrInvalidOperation))
	assert.Empty(t, f.pub.Calls())
}

func TestDoRecoversPanic(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	err = sess.Do(context.Background(), "conn", handle("boom", "p1"))
	var panicErr *session.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)

	// The actor survives.
	require.NoError(t, sess.Do(context.Background(), "conn", handle("inc", "p1")))
}

func TestTimerFireGoesThroughMailbox(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	require.NoError(t, sess.Do(context.Background(), "conn", handle("arm", "p1")))
	f.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { return len(f.pub.Calls()) == 1 }, waitFor, 5*time.Millisecond)
	call := f.pub.Calls()[0]
	assert.Equal(t, "", call.Origin)
	assert.Equal(t, []string{models.OpRoundTimeout}, call.Ops)
}

func TestTimerDisarmed(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	require.NoError(t, sess.Do(context.Background(), "conn", handle("arm", "p1")))
	require.NoError(t, sess.Do(context.Background(), "conn", handle("disarm", "p1")))
	f.clock.Advance(time.Minute)

	assert.Never(t, func() bool { return len(f.pub.Calls()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestClosedStoreRejectsWork(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.store.GetOrCreate("room", models.VariantVoting)
	require.NoError(t, err)

	f.store.Close()

	assert.ErrorIs(t, sess.Do(context.Background(), "conn", handle("inc", "p1")), session.ErrClosed)
	_, _, err = f.store.GetOrCreate("other", models.VariantVoting)
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestSessionsSorted(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"c", "a", "b"} {
		_, _, err := f.store.GetOrCreate(id, models.VariantVoting)
		require.NoError(t, err)
	}

	var ids []string
	for _, s := range f.store.Sessions() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
