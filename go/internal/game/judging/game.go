// Package judging implements the card-judging engine: a rotating judge plays
// a prompt card, the other players answer from their hands, the judge picks a
// winner.
package judging

import (
	"encoding/json"
	"math/rand"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/rs/zerolog/log"
)

// PackSource looks up card packs by name.
type PackSource interface {
	Pack(name string) (catalog.Pack, bool)
}

// Game is a card-judging session. It is not safe for concurrent use; the
// owning session serializes every call.
type Game struct {
	id     string
	config Config
	packs  PackSource
	rng    *rand.Rand

	players       []*Player
	selectedPacks []string
	phase         Phase
	judge         string
	blackCard     *BlackCard
	submissions   []Submission
	winner        string
	deck          Deck
	round         int
	waiting       bool
	completed     bool
}

func New(id string, cfg Config, packs PackSource, clock clockwork.Clock, rng *rand.Rand) *Game {
	if rng == nil {
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Game{
		id:      id,
		config:  cfg,
		packs:   packs,
		rng:     rng,
		phase:   PhaseWaiting,
		waiting: true,
	}
}

func (g *Game) ID() string { return g.id }

func (g *Game) Variant() models.Variant { return models.VariantJudging }

// Handle decodes and applies one player action.
func (g *Game) Handle(a models.Action) (models.Outcome, error) {
	switch a.Op {
	case models.OpJoinGame:
		var req models.JoinRequest
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		return g.Join(a.PlayerID, req.PlayerName)
	case OpSelectPacks, OpSelectCardPacks:
		var req struct {
			PackIDs []string `json:"packIds"`
			Packs   []string `json:"packs"`
		}
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		if len(req.PackIDs) == 0 {
			req.PackIDs = req.Packs
		}
		return g.SelectPacks(req.PackIDs)
	case OpSubmitCards:
		var req struct {
			CardIDs []string `json:"cardIds"`
		}
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		return g.SubmitCards(a.PlayerID, req.CardIDs)
	case OpSelectWinner, OpJudgeCards:
		var req struct {
			WinnerPlayerID string `json:"winnerPlayerId"`
			WinnerID       string `json:"winnerId"`
		}
		if err := a.Decode(&req); err != nil {
			return models.Outcome{}, err
		}
		if req.WinnerPlayerID == "" {
			req.WinnerPlayerID = req.WinnerID
		}
		return g.SelectWinner(a.PlayerID, req.WinnerPlayerID)
	case models.OpResetGame:
		return g.Reset(), nil
	default:
		return models.Outcome{}, gameerr.InvalidOperation(a.Op, "Unsupported operation for this game")
	}
}

// Join adds a player or reconnects a returning one. The join that brings the
// table to the minimum player count starts the first round when packs are
// already chosen.
func (g *Game) Join(playerID, name string) (models.Outcome, error) {
	var out models.Outcome

	if p := g.player(playerID); p != nil {
		returning := !p.Connected
		p.Connected = true
		if returning && g.phase.inRound() && !p.IsJudge {
			g.topUp(p)
		}
	} else {
		name, err := models.NormalizePlayerName(name)
		if err != nil {
			return out, err
		}
		if g.config.MaxPlayers > 0 && len(g.players) >= g.config.MaxPlayers {
			return out, gameerr.GameFull(g.config.MaxPlayers)
		}
		p := &Player{ID: playerID, Name: name, Connected: true}
		g.players = append(g.players, p)
		if g.phase.inRound() {
			g.topUp(p)
		}
		log.Info().
			Str("session_id", g.id).
			Str("player_id", playerID).
			Int("players", len(g.players)).
			Msg("player joined")
	}

	if g.phase == PhaseWaiting && g.ConnectedPlayers() >= g.config.MinPlayers {
		g.waiting = false
		if len(g.selectedPacks) > 0 {
			g.startRound(&out)
		}
	}
	g.reassignJudge()

	out.Emit(g.stateEvent())
	return out, nil
}

// SelectPacks loads and shuffles the decks for the chosen packs. Only allowed
// before the first round.
func (g *Game) SelectPacks(packIDs []string) (models.Outcome, error) {
	var out models.Outcome

	if g.phase != PhaseWaiting {
		return out, gameerr.InvalidOperation(OpSelectPacks, "Cannot change packs after game has started")
	}

	var selected []string
	for _, id := range packIDs {
		if id != "" && !slices.Contains(selected, id) {
			selected = append(selected, id)
		}
	}
	if len(selected) == 0 {
		return out, gameerr.Validation("At least one card pack must be selected")
	}

	var deck Deck
	for _, id := range selected {
		pack, ok := g.packs.Pack(id)
		if !ok {
			return out, gameerr.Validation("Unknown card pack %q", id)
		}
		for _, c := range pack.BlackCards {
			pick := c.PickCount
			if pick < 1 {
				pick = 1
			}
			deck.BlackCards = append(deck.BlackCards, BlackCard{ID: uuid.NewString(), Text: c.Text, Pick: pick})
		}
		for _, c := range pack.WhiteCards {
			deck.WhiteCards = append(deck.WhiteCards, WhiteCard{ID: uuid.NewString(), Text: c.Text})
		}
	}
	if len(deck.BlackCards) == 0 {
		return out, gameerr.Validation("Selected packs contain no prompt cards")
	}

	g.rng.Shuffle(len(deck.BlackCards), func(i, j int) {
		deck.BlackCards[i], deck.BlackCards[j] = deck.BlackCards[j], deck.BlackCards[i]
	})
	g.rng.Shuffle(len(deck.WhiteCards), func(i, j int) {
		deck.WhiteCards[i], deck.WhiteCards[j] = deck.WhiteCards[j], deck.WhiteCards[i]
	})

	g.selectedPacks = selected
	g.deck = deck
	log.Info().
		Str("session_id", g.id).
		Strs("packs", selected).
		Int("black_cards", len(deck.BlackCards)).
		Int("white_cards", len(deck.WhiteCards)).
		Msg("card packs selected")

	if g.ConnectedPlayers() >= g.config.MinPlayers {
		g.waiting = false
		g.startRound(&out)
	}

	out.Emit(g.stateEvent())
	return out, nil
}

// SubmitCards plays cards from a player's hand for the current prompt. All
// checks run before the hand is touched.
func (g *Game) SubmitCards(playerID string, cardIDs []string) (models.Outcome, error) {
	var out models.Outcome

	if g.phase != PhaseSelecting {
		return out, gameerr.InvalidOperation(OpSubmitCards, "Not in card selection phase")
	}
	p := g.player(playerID)
	if p == nil {
		return out, gameerr.NotFound("Player", playerID)
	}
	if p.IsJudge {
		return out, gameerr.InvalidOperation(OpSubmitCards, "The judge cannot submit cards")
	}
	if g.submission(playerID) >= 0 {
		return out, gameerr.InvalidOperation(OpSubmitCards, "You have already submitted for this round")
	}
	if len(cardIDs) != g.blackCard.Pick {
		return out, gameerr.Validation("Must submit exactly %d cards", g.blackCard.Pick)
	}

	positions := make([]int, 0, len(cardIDs))
	for _, id := range cardIDs {
		i := slices.IndexFunc(p.Hand, func(c WhiteCard) bool { return c.ID == id })
		if i < 0 || slices.Contains(positions, i) {
			return out, gameerr.Validation("Card %s is not in your hand", id)
		}
		positions = append(positions, i)
	}

	cards := make([]WhiteCard, 0, len(positions))
	for _, i := range positions {
		cards = append(cards, p.Hand[i])
	}
	p.Hand = slices.DeleteFunc(p.Hand, func(c WhiteCard) bool {
		return slices.ContainsFunc(cards, func(s WhiteCard) bool { return s.ID == c.ID })
	})
	g.submissions = append(g.submissions, Submission{PlayerID: p.ID, PlayerName: p.Name, Cards: cards})

	g.checkAllSubmitted()
	out.Emit(g.stateEvent())
	return out, nil
}

// SelectWinner awards the round to winnerID and schedules the next round.
func (g *Game) SelectWinner(judgeID, winnerID string) (models.Outcome, error) {
	var out models.Outcome

	if g.phase != PhaseJudging {
		return out, gameerr.InvalidOperation(OpSelectWinner, "Not in judging phase")
	}
	if judgeID != g.judge {
		return out, gameerr.InvalidOperation(OpSelectWinner, "Only the current judge can select a winner")
	}
	winner := g.player(winnerID)
	if winner == nil {
		return out, gameerr.NotFound("Player", winnerID)
	}
	if g.submission(winnerID) < 0 {
		return out, gameerr.Validation("Player %s did not submit cards this round", winnerID)
	}

	winner.Score++
	g.winner = winner.ID
	g.phase = PhaseScoring
	out.Arm(ScoringSlot, g.config.ScoringDelay, g.round)

	log.Info().
		Str("session_id", g.id).
		Str("winner_id", winner.ID).
		Int("round", g.round).
		Msg("round winner selected")

	out.Emit(g.stateEvent())
	return out, nil
}

// Fire handles the end of the scoring pause: the game ends after the last
// round, otherwise the next round starts. Stale fires are ignored.
func (g *Game) Fire(f models.Fire) models.Outcome {
	var out models.Outcome
	if f.Slot != ScoringSlot || f.Round != g.round || g.phase != PhaseScoring {
		log.Debug().
			Str("session_id", g.id).
			Int("timer_round", f.Round).
			Int("round", g.round).
			Str("phase", string(g.phase)).
			Msg("ignoring stale scoring timer")
		return out
	}

	if g.round >= g.config.MaxRounds {
		g.endGame()
	} else {
		g.startRound(&out)
	}
	out.Emit(g.stateEvent())
	return out
}

// Reset returns to the waiting phase with no packs or decks and zeroed
// scores. Players stay in the session.
func (g *Game) Reset() models.Outcome {
	var out models.Outcome
	out.Disarm(ScoringSlot)

	g.phase = PhaseWaiting
	g.judge = ""
	g.blackCard = nil
	g.submissions = nil
	g.winner = ""
	g.selectedPacks = nil
	g.deck = Deck{}
	g.round = 0
	g.completed = false
	g.waiting = g.ConnectedPlayers() < g.config.MinPlayers
	for _, p := range g.players {
		p.Score = 0
		p.Hand = nil
		p.IsJudge = false
	}

	out.Emit(g.stateEvent())
	return out
}

// Disconnect marks a player offline, handing the judge role on if needed.
// Cards the player already submitted stay in the round.
func (g *Game) Disconnect(playerID string) models.Outcome {
	var out models.Outcome
	p := g.player(playerID)
	if p == nil || !p.Connected {
		return out
	}
	p.Connected = false
	g.reassignJudge()
	g.checkAllSubmitted()
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

func (g *Game) View() any {
	return g.State()
}

// State returns a copy of the broadcast state.
func (g *Game) State() State {
	s := State{
		ID:                g.id,
		Players:           make([]Player, 0, len(g.players)),
		SelectedPacks:     slices.Clone(g.selectedPacks),
		Phase:             g.phase,
		CurrentJudge:      g.judge,
		SubmittedCards:    make([]Submission, 0, len(g.submissions)),
		RoundWinner:       g.winner,
		Deck:              DeckCount{BlackCards: len(g.deck.BlackCards), WhiteCards: len(g.deck.WhiteCards)},
		HandSize:          g.config.HandSize,
		MaxRounds:         g.config.MaxRounds,
		CurrentRound:      g.round,
		WaitingForPlayers: g.waiting,
		GameCompleted:     g.completed,
	}
	for _, p := range g.players {
		cp := *p
		cp.Hand = slices.Clone(p.Hand)
		s.Players = append(s.Players, cp)
	}
	for _, sub := range g.submissions {
		s.SubmittedCards = append(s.SubmittedCards, Submission{
			PlayerID:   sub.PlayerID,
			PlayerName: sub.PlayerName,
			Cards:      slices.Clone(sub.Cards),
		})
	}
	if g.blackCard != nil {
		card := *g.blackCard
		s.CurrentBlackCard = &card
	}
	return s
}

// MarshalJSON serializes the full game including undealt cards.
func (g *Game) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		State: g.State(),
		Cards: Deck{
			BlackCards: slices.Clone(g.deck.BlackCards),
			WhiteCards: slices.Clone(g.deck.WhiteCards),
		},
	})
}

// startRound rotates the judge, draws a prompt and refills hands. Running out
// of prompt cards ends the game.
func (g *Game) startRound(out *models.Outcome) {
	out.Disarm(ScoringSlot)

	g.round++
	g.submissions = nil
	g.winner = ""
	g.rotateJudge()

	n := len(g.deck.BlackCards)
	if n == 0 {
		g.endGame()
		return
	}
	card := g.deck.BlackCards[n-1]
	g.deck.BlackCards = g.deck.BlackCards[:n-1]
	g.blackCard = &card

	if need := g.ConnectedPlayers() * 2; len(g.deck.WhiteCards) < need {
		log.Warn().
			Str("session_id", g.id).
			Int("white_cards", len(g.deck.WhiteCards)).
			Int("wanted", need).
			Msg("response deck running low")
	}
	for _, p := range g.players {
		if p.Connected && !p.IsJudge {
			g.topUp(p)
		}
	}
	g.phase = PhaseSelecting

	log.Info().
		Str("session_id", g.id).
		Int("round", g.round).
		Str("judge_id", g.judge).
		Msg("round started")
}

func (g *Game) endGame() {
	g.phase = PhaseGameOver
	g.completed = true
	g.blackCard = nil
	log.Info().Str("session_id", g.id).Int("round", g.round).Msg("game over")
}

// rotateJudge hands the judge role to the next connected player after the
// current judge in join order.
func (g *Game) rotateJudge() {
	start := slices.IndexFunc(g.players, func(p *Player) bool { return p.ID == g.judge })
	next := ""
	for step := 1; step <= len(g.players); step++ {
		p := g.players[(start+step+len(g.players))%len(g.players)]
		if p.Connected {
			next = p.ID
			break
		}
	}

	g.judge = next
	for _, p := range g.players {
		p.IsJudge = p.ID == next
	}
}

// reassignJudge replaces a judge who is no longer connected. A new judge's
// own submission goes back to their hand; if that leaves nothing to judge the
// round reopens for submissions.
func (g *Game) reassignJudge() {
	if !g.phase.inRound() {
		return
	}
	if j := g.player(g.judge); j != nil && j.Connected {
		return
	}
	g.rotateJudge()
	if g.judge == "" {
		return
	}

	if i := g.submission(g.judge); i >= 0 {
		judge := g.player(g.judge)
		judge.Hand = append(judge.Hand, g.submissions[i].Cards...)
		g.submissions = slices.Delete(g.submissions, i, i+1)
		if g.phase == PhaseJudging && len(g.submissions) == 0 {
			g.phase = PhaseSelecting
		}
	}
	log.Info().Str("session_id", g.id).Str("judge_id", g.judge).Msg("judge reassigned")
}

// checkAllSubmitted moves to judging once every connected non-judge has
// submitted.
func (g *Game) checkAllSubmitted() {
	if g.phase != PhaseSelecting {
		return
	}
	expected := 0
	for _, p := range g.players {
		if !p.Connected || p.IsJudge {
			continue
		}
		expected++
		if g.submission(p.ID) < 0 {
			return
		}
	}
	if expected > 0 {
		g.phase = PhaseJudging
	}
}

func (g *Game) topUp(p *Player) {
	for len(p.Hand) < g.config.HandSize && len(g.deck.WhiteCards) > 0 {
		n := len(g.deck.WhiteCards)
		p.Hand = append(p.Hand, g.deck.WhiteCards[n-1])
		g.deck.WhiteCards = g.deck.WhiteCards[:n-1]
	}
}

func (g *Game) submission(playerID string) int {
	return slices.IndexFunc(g.submissions, func(s Submission) bool { return s.PlayerID == playerID })
}

func (g *Game) player(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *Game) stateEvent() models.Event {
	return models.GameState(g.State())
}
