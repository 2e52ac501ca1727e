// Package game ties the variant engines to the session layer. A session holds
// exactly one Game, and its Variant never changes.
package game

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/game/judging"
	"github.com/mcdev12/partygames/go/internal/game/voting"
	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
)

// Game is the per-session state machine. Implementations are not safe for
// concurrent use. MarshalJSON yields the full persisted state.
type Game interface {
	json.Marshaler

	ID() string
	Variant() models.Variant

	// Handle applies one player action. On error the state is unchanged.
	Handle(a models.Action) (models.Outcome, error)
	// Fire applies an expired timer. Stale fires produce an empty outcome.
	Fire(f models.Fire) models.Outcome
	Disconnect(playerID string) models.Outcome

	HasPlayer(playerID string) bool
	ConnectedPlayers() int
	// View is the broadcast snapshot. It shares no memory with the game.
	View() any
}

var (
	_ Game = (*voting.Game)(nil)
	_ Game = (*judging.Game)(nil)
)

// Factory builds a fresh game for a new session id.
type Factory func(id string) Game

// Registry maps each variant to its factory.
type Registry struct {
	factories map[models.Variant]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.Variant]Factory)}
}

func (r *Registry) Register(v models.Variant, f Factory) {
	r.factories[v] = f
}

// New creates a game of variant v.
func (r *Registry) New(v models.Variant, id string) (Game, error) {
	f, ok := r.factories[v]
	if !ok {
		return nil, gameerr.Validation("Unsupported game type %q", string(v))
	}
	g := f(id)
	if g.Variant() != v {
		return nil, fmt.Errorf("factory for %s built a %s game", v, g.Variant())
	}
	return g, nil
}

func (r *Registry) Supports(v models.Variant) bool {
	_, ok := r.factories[v]
	return ok
}

// Config carries the per-variant settings.
type Config struct {
	Voting  voting.Config
	Judging judging.Config
}

func DefaultConfig() Config {
	return Config{
		Voting:  voting.DefaultConfig(),
		Judging: judging.DefaultConfig(),
	}
}

// DefaultRegistry registers both variants backed by cat. Every game gets its
// own random source.
func DefaultRegistry(cfg Config, cat *catalog.Catalog, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := NewRegistry()
	r.Register(models.VariantVoting, func(id string) Game {
		return voting.New(id, cfg.Voting, cat, clock, newRand(clock))
	})
	r.Register(models.VariantJudging, func(id string) Game {
		return judging.New(id, cfg.Judging, cat, clock, newRand(clock))
	})
	return r
}

func newRand(clock clockwork.Clock) *rand.Rand {
	return rand.New(rand.NewSource(clock.Now().UnixNano()))
}
