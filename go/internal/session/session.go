// Package session runs each game behind a single-goroutine actor and owns
// the set of live sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/mcdev12/partygames/go/internal/timer"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned for work submitted after the store shut down.
var ErrClosed = errors.New("session closed")

// PanicError reports a handler panic recovered by the session actor. The
// session keeps running but its state may be inconsistent.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in session handler: %v", e.Value)
}

// Publisher fans events out to a session's connections. origin is the
// connection id of the acting client, empty for timer-driven changes.
type Publisher interface {
	Publish(sessionID, origin string, events []models.Event)
}

// Handler runs on the session actor with exclusive access to the game.
type Handler func(g game.Game) (models.Outcome, error)

type job struct {
	origin string
	fn     Handler
	result chan error
}

// Session is one running game. All access to the game goes through the
// session's mailbox and runs on a single goroutine, so actions, timer fires
// and snapshots are applied one at a time in arrival order.
type Session struct {
	id        string
	variant   models.Variant
	game      game.Game
	timers    *timer.Scheduler
	publisher Publisher
	createdAt time.Time

	mailbox chan job
	done    <-chan struct{}
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Variant() models.Variant { return s.variant }
func (s *Session) CreatedAt() time.Time    { return s.createdAt }

// Do runs fn on the session actor and waits for it. When fn succeeds its
// timer directives are applied and its events published before Do returns.
// ctx bounds only the wait for a mailbox slot: once queued, the job always
// runs, so Do waits for its result rather than report a failure for an action
// that may still be applied.
func (s *Session) Do(ctx context.Context, origin string, fn Handler) error {
	j := job{origin: origin, fn: fn, result: make(chan error, 1)}

	select {
	case s.mailbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-j.result:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// Read runs fn on the session actor without changing state.
func (s *Session) Read(ctx context.Context, fn func(g game.Game)) error {
	return s.Do(ctx, "", func(g game.Game) (models.Outcome, error) {
		fn(g)
		return models.Outcome{}, nil
	})
}

// Snapshot serializes the full game state and reports how many players are
// connected.
func (s *Session) Snapshot(ctx context.Context) (payload []byte, connected int, err error) {
	var marshalErr error
	err = s.Read(ctx, func(g game.Game) {
		connected = g.ConnectedPlayers()
		payload, marshalErr = g.MarshalJSON()
	})
	if err != nil {
		return nil, 0, err
	}
	if marshalErr != nil {
		return nil, 0, fmt.Errorf("marshal session %s: %w", s.id, marshalErr)
	}
	return payload, connected, nil
}

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.mailbox:
			err := s.execute(j)
			if j.result != nil {
				j.result <- err
			}
		}
	}
}

func (s *Session) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			log.Error().
				Str("session_id", s.id).
				Interface("panic", r).
				Bytes("stack", pe.Stack).
				Msg("recovered panic in session handler")
			err = pe
		}
	}()

	out, err := j.fn(s.game)
	if err != nil {
		return err
	}
	s.apply(j.origin, out)
	return nil
}

func (s *Session) apply(origin string, out models.Outcome) {
	for _, op := range out.Timers {
		key := timer.Key(s.id, op.Slot)
		if op.Cancel {
			s.timers.Disarm(key)
			continue
		}
		fire := op.Fire
		s.timers.Arm(key, op.After, func() { s.enqueueFire(fire) })
	}

	if len(out.Events) > 0 {
		s.publisher.Publish(s.id, origin, out.Events)
	}
}

// enqueueFire feeds an expired timer back through the mailbox so it is
// applied like any player action.
func (s *Session) enqueueFire(f models.Fire) {
	j := job{fn: func(g game.Game) (models.Outcome, error) {
		return g.Fire(f), nil
	}}

	select {
	case s.mailbox <- j:
	case <-s.done:
	}
}
