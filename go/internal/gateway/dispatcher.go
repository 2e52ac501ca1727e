package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Dispatcher turns inbound frames into session actions and reports failures
// back to the acting connection only.
type Dispatcher struct {
	store       *session.Store
	registry    *Registry
	broadcaster *Broadcaster
}

func NewDispatcher(store *session.Store, registry *Registry, broadcaster *Broadcaster) *Dispatcher {
	return &Dispatcher{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
	}
}

type envelope struct {
	Op string `json:"op"`
}

// Dispatch handles one inbound frame from c.
func (d *Dispatcher) Dispatch(ctx context.Context, c Client, frame []byte) {
	start := time.Now()

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		d.fail(c, "", gameerr.MessageParse("Invalid message format"))
		return
	}
	if env.Op == "" {
		d.fail(c, "", gameerr.MessageParse("Message is missing op"))
		return
	}

	logger := log.With().
		Str("connection_id", c.ID()).
		Str("session_id", c.SessionID()).
		Str("player_id", c.PlayerID()).
		Str("op", env.Op).
		Logger()
	logger.Debug().Msg("received client message")

	switch env.Op {
	case models.OpPing:
		d.broadcaster.Send(c, models.Pong())
		return
	case models.OpReconnectStatus:
		d.broadcaster.Send(c, models.ReconnectStatusEvent())
		return
	}

	action := models.Action{Op: env.Op, PlayerID: c.PlayerID(), Payload: frame}
	if err := d.handle(ctx, c, action); err != nil {
		d.fail(c, env.Op, err)
		return
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("handled client message")
}

func (d *Dispatcher) handle(ctx context.Context, c Client, action models.Action) error {
	sess, err := d.resolve(c, action)
	if err != nil {
		return err
	}

	return sess.Do(ctx, c.ID(), func(g game.Game) (models.Outcome, error) {
		if action.Op != models.OpJoinGame && !g.HasPlayer(action.PlayerID) {
			return models.Outcome{}, gameerr.NotFound("Player", action.PlayerID)
		}
		return g.Handle(action)
	})
}

// resolve finds the session the action targets. Only join_game with create
// intent may create it; the session then takes the connection's variant.
func (d *Dispatcher) resolve(c Client, action models.Action) (*session.Session, error) {
	if action.Op == models.OpJoinGame {
		var req models.JoinRequest
		if err := action.Decode(&req); err != nil {
			return nil, err
		}
		if req.Create {
			sess, _, err := d.store.GetOrCreate(c.SessionID(), c.Variant())
			return sess, err
		}
	}

	sess, ok := d.store.Get(c.SessionID())
	if !ok {
		return nil, gameerr.NotFound("Game", c.SessionID())
	}
	return sess, nil
}

// Disconnect marks the connection's player disconnected unless another live
// connection still claims the same player.
func (d *Dispatcher) Disconnect(c Client) {
	sess, ok := d.store.Get(c.SessionID())
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sess.Do(ctx, "", func(g game.Game) (models.Outcome, error) {
		if !g.HasPlayer(c.PlayerID()) || d.registry.PlayerConnected(c.SessionID(), c.PlayerID()) {
			return models.Outcome{}, nil
		}
		return g.Disconnect(c.PlayerID()), nil
	})
	if err != nil && !errors.Is(err, session.ErrClosed) {
		log.Error().
			Err(err).
			Str("session_id", c.SessionID()).
			Str("player_id", c.PlayerID()).
			Msg("failed to mark player disconnected")
	}
}

func (d *Dispatcher) fail(c Client, op string, err error) {
	kind := gameerr.KindOf(err)
	message := err.Error()

	event := log.Warn()
	if kind == gameerr.KindInternal {
		message = gameerr.InternalMessage
		event = log.Error()
	}
	event.Err(err).
		Str("connection_id", c.ID()).
		Str("session_id", c.SessionID()).
		Str("player_id", c.PlayerID()).
		Str("op", op).
		Str("code", string(kind)).
		Msg("client action failed")

	d.broadcaster.Send(c, models.ErrorEvent(string(kind), message, op))

	var panicErr *session.PanicError
	switch {
	case kind == gameerr.KindGameFull:
		c.Close(websocket.CloseTryAgainLater, "Game is full")
	case errors.As(err, &panicErr):
		c.Close(websocket.CloseInternalServerErr, gameerr.InternalMessage)
	}
}
