// Package voting implements the "never have I ever" engine: players pick
// categories, then vote Have / Have Not / Kinda on one prompt per round.
package voting

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CategorySource hands out a fresh copy of the category catalog.
type CategorySource interface {
	Categories() catalog.Categories
}

// Game is a voting session. It is not safe for concurrent use; the owning
// session serializes every call.
type Game struct {
	id     string
	config Config
	source CategorySource
	clock  clockwork.Clock
	rng    *rand.Rand

	players        []*Player
	categories     []string
	current        Question
	history        []Round
	categorySelect bool
	completed      bool
	waiting        bool
	timeoutStart   *time.Time
	round          int
	data           catalog.Categories
}

func New(id string, cfg Config, source CategorySource, clock clockwork.Clock, rng *rand.Rand) *Game {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Game{
		id:             id,
		config:         cfg,
		source:         source,
		clock:          clock,
		rng:            rng,
		categorySelect: true,
		data:           source.Categories(),
	}
}

func (g *Game) ID() string { return g.id }

func (g *Game) Variant() models.Variant { return models.VariantVoting }

// Handle decodes and applies one player action.
func (g *Game) Handle(a models.Action) (models.Outcome, error) {
	switch a.Op {
	case models.OpJoinGame:
		var req models.JoinRequest
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		return g.Join(a.PlayerID, req.PlayerName)
	case OpSelectCategories:
		return g.EnterCategorySelect(), nil
	case OpSelectCategory:
		var req struct {
			Category string `json:"catagory"`
		}
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		return g.ToggleCategory(req.Category)
	case OpConfirmSelections:
		return g.ConfirmSelections()
	case OpNextQuestion:
		return g.AdvanceRound(false)
	case OpVote:
		var req struct {
			Option int `json:"option"`
		}
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		return g.Vote(a.PlayerID, Option(req.Option))
	case models.OpResetGame:
		return g.Reset(), nil
	default:
		return models.Outcome{}, gameerr.InvalidOperation(a.Op, "Unsupported operation for this game")
	}
}

// Join adds a player, or marks a returning player connected again.
func (g *Game) Join(playerID, name string) (models.Outcome, error) {
	var out models.Outcome

	if p := g.player(playerID); p != nil {
		p.Connected = true
		out.Emit(g.stateEvent())
		return out, nil
	}

	name, err := models.NormalizePlayerName(name)
	if err != nil {
		return out, err
	}
	if g.config.MaxPlayers > 0 && len(g.players) >= g.config.MaxPlayers {
		return out, gameerr.GameFull(g.config.MaxPlayers)
	}

	g.players = append(g.players, &Player{ID: playerID, Name: name, Connected: true})
	log.Info().
		Str("session_id", g.id).
		Str("player_id", playerID).
		Int("players", len(g.players)).
		Msg("player joined")

	out.Emit(g.stateEvent())
	return out, nil
}

// EnterCategorySelect reopens category selection.
func (g *Game) EnterCategorySelect() models.Outcome {
	var out models.Outcome
	g.categorySelect = true
	out.Emit(g.stateEvent())
	return out
}

// ToggleCategory adds or removes a category. It is accepted in any phase.
func (g *Game) ToggleCategory(category string) (models.Outcome, error) {
	var out models.Outcome
	if category == "" {
		return out, gameerr.Validation("Category is required")
	}

	if i := slices.Index(g.categories, category); i >= 0 {
		g.categories = slices.Delete(g.categories, i, i+1)
	} else {
		g.categories = append(g.categories, category)
	}

	out.Emit(g.stateEvent())
	return out, nil
}

func (g *Game) ConfirmSelections() (models.Outcome, error) {
	var out models.Outcome
	if len(g.categories) == 0 {
		return out, gameerr.Validation("At least one category must be selected")
	}
	g.categorySelect = false
	out.Emit(g.stateEvent())
	return out, nil
}

// AdvanceRound archives the current round and moves to the next prompt. A
// manual advance (forced=false) during an active round needs every connected
// player to have voted.
func (g *Game) AdvanceRound(forced bool) (models.Outcome, error) {
	var out models.Outcome

	if g.completed {
		return out, gameerr.InvalidOperation(OpNextQuestion, "The game is over")
	}
	if g.categorySelect {
		return out, gameerr.InvalidOperation(OpNextQuestion, "Categories have not been confirmed")
	}
	if g.waiting && !forced {
		voted, connected := g.voteCount()
		if voted < connected {
			return out, gameerr.InvalidOperation(OpNextQuestion,
				fmt.Sprintf("Cannot skip - waiting for all players to vote (%d/%d)", voted, connected))
		}
	}

	g.advance(&out)
	return out, nil
}

// Vote records a player's choice. A changed vote first reverses the previous
// choice's points, so only the latest vote in a round counts.
func (g *Game) Vote(playerID string, option Option) (models.Outcome, error) {
	var out models.Outcome

	if !option.Valid() {
		return out, gameerr.Validation("Invalid vote option")
	}
	p := g.player(playerID)
	if p == nil {
		return out, gameerr.NotFound("Player", playerID)
	}
	if !g.waiting {
		return out, gameerr.InvalidOperation(OpVote, "No round is in progress")
	}

	if p.ThisRound.Voted {
		p.Score -= p.ThisRound.Option.Points()
	}
	p.Score += option.Points()
	p.ThisRound = RoundVote{Option: option, Vote: option.String(), Voted: true}

	out.Emit(models.VoteCast(*p, option.String()))

	if g.allVoted() {
		g.advance(&out)
		return out, nil
	}

	if g.timeoutStart == nil {
		now := g.clock.Now()
		g.timeoutStart = &now
		out.Arm(RoundSlot, g.config.RoundTimeout, g.round)
	}
	out.Emit(g.stateEvent())
	return out, nil
}

// Fire handles an expired round timer. Fires for a round that already moved
// on are ignored.
func (g *Game) Fire(f models.Fire) models.Outcome {
	var out models.Outcome
	if f.Slot != RoundSlot || f.Round != g.round || !g.waiting || g.timeoutStart == nil {
		log.Debug().
			Str("session_id", g.id).
			Int("timer_round", f.Round).
			Int("round", g.round).
			Msg("ignoring stale round timer")
		return out
	}

	out.Emit(models.RoundTimeout(TimeoutMessage))
	g.advance(&out)
	return out
}

// Reset returns the game to category selection with a fresh prompt pool and
// zeroed scores. Players stay in the session.
func (g *Game) Reset() models.Outcome {
	var out models.Outcome
	out.Disarm(RoundSlot)

	g.categories = nil
	g.history = nil
	g.current = Question{}
	g.categorySelect = true
	g.completed = false
	g.waiting = false
	g.timeoutStart = nil
	g.round++
	g.data = g.source.Categories()
	for _, p := range g.players {
		p.Score = 0
		p.ThisRound = RoundVote{}
	}

	out.Emit(g.stateEvent())
	return out
}

// Disconnect marks a player offline. Their vote for the round stands, and the
// round advances if everyone still connected has voted.
func (g *Game) Disconnect(playerID string) models.Outcome {
	var out models.Outcome
	p := g.player(playerID)
	if p == nil || !p.Connected {
		return out
	}
	p.Connected = false
	if g.waiting && g.allVoted() {
		g.advance(&out)
		return out
	}
	out.Emit(g.stateEvent())
	return out
}

func (g *Game) HasPlayer(playerID string) bool {
	return g.player(playerID) != nil
}

func (g *Game) ConnectedPlayers() int {
	n := 0
	for _, p := range g.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// View is the broadcast snapshot.
func (g *Game) View() any {
	return g.State()
}

// State returns a copy of the broadcast state.
func (g *Game) State() State {
	s := State{
		ID:                g.id,
		Players:           g.playerCopies(),
		Categories:        slices.Clone(g.categories),
		CurrentQuestion:   g.current,
		CategorySelect:    g.categorySelect,
		GameCompleted:     g.completed,
		WaitingForPlayers: g.waiting,
		Round:             g.round,
	}
	if g.completed {
		s.History = g.historyCopy()
	}
	if g.waiting && g.timeoutStart != nil {
		start := *g.timeoutStart
		s.TimeoutStart = &start
		s.TimeoutDuration = g.config.RoundTimeout.Milliseconds()
	}
	return s
}

// MarshalJSON serializes the full game, including history and the remaining
// prompt pool.
func (g *Game) MarshalJSON() ([]byte, error) {
	s := g.State()
	s.History = g.historyCopy()
	s.Data = g.data.Clone()
	return json.Marshal(s)
}

func (g *Game) advance(out *models.Outcome) {
	out.Disarm(RoundSlot)
	g.timeoutStart = nil

	if !g.current.Empty() {
		g.history = append(g.history, Round{Question: g.current, Players: g.playerCopies()})
	}

	g.current = g.selectQuestion()
	g.round++
	for _, p := range g.players {
		p.ThisRound = RoundVote{}
	}
	g.waiting = !g.completed

	out.Emit(g.stateEvent())
	if !g.completed {
		out.Emit(models.NewRound())
	}

	log.Info().
		Str("session_id", g.id).
		Int("round", g.round).
		Bool("completed", g.completed).
		Msg("round advanced")
}

// selectQuestion draws a random prompt from a random remaining category. A
// category leaves the rotation once its pool is drained; the game completes
// when a draw finds no category left.
func (g *Game) selectQuestion() Question {
	for len(g.categories) > 0 {
		i := g.rng.Intn(len(g.categories))
		name := g.categories[i]
		cat := g.data[name]

		if len(cat.Prompts) == 0 {
			g.categories = slices.Delete(g.categories, i, i+1)
			continue
		}

		j := g.rng.Intn(len(cat.Prompts))
		prompt := cat.Prompts[j]
		cat.Prompts = slices.Delete(cat.Prompts, j, j+1)
		g.data[name] = cat

		if len(cat.Prompts) == 0 {
			g.categories = slices.Delete(g.categories, i, i+1)
		}
		return Question{Category: name, Content: prompt}
	}

	g.completed = true
	return Question{}
}

func (g *Game) voteCount() (voted, connected int) {
	for _, p := range g.players {
		if !p.Connected {
			continue
		}
		connected++
		if p.ThisRound.Voted {
			voted++
		}
	}
	return voted, connected
}

func (g *Game) allVoted() bool {
	voted, connected := g.voteCount()
	return connected > 0 && voted == connected
}

func (g *Game) player(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *Game) playerCopies() []Player {
	out := make([]Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, *p)
	}
	return out
}

func (g *Game) historyCopy() []Round {
	out := make([]Round, 0, len(g.history))
	for _, r := range g.history {
		out = append(out, Round{Question: r.Question, Players: slices.Clone(r.Players)})
	}
	return out
}

func (g *Game) stateEvent() models.Event {
	return models.GameState(g.State())
}
