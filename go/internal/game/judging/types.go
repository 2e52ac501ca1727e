package judging

import "time"

// Card-judging actions. The second name of each pair is accepted as an alias.
const (
	OpSelectPacks     = "select_packs"
	OpSelectCardPacks = "select_card_packs"
	OpSubmitCards     = "submit_cards"
	OpSelectWinner    = "select_winner"
	OpJudgeCards      = "judge_cards"
)

// ScoringSlot is the timer slot for the pause between a winner being picked
// and the next round.
const ScoringSlot = "scoring"

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseSelecting Phase = "selecting"
	PhaseJudging   Phase = "judging"
	PhaseScoring   Phase = "scoring"
	PhaseGameOver  Phase = "game_over"
)

// inRound reports whether a round is being played.
func (p Phase) inRound() bool {
	return p == PhaseSelecting || p == PhaseJudging || p == PhaseScoring
}

type Config struct {
	HandSize     int
	MaxRounds    int
	MinPlayers   int
	MaxPlayers   int
	ScoringDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		HandSize:     7,
		MaxRounds:    10,
		MinPlayers:   3,
		MaxPlayers:   12,
		ScoringDelay: 3 * time.Second,
	}
}

type BlackCard struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Pick int    `json:"pick"`
}

type WhiteCard struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Player struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Score     int         `json:"score"`
	Connected bool        `json:"connected"`
	Hand      []WhiteCard `json:"hand"`
	IsJudge   bool        `json:"isJudge"`
}

type Submission struct {
	PlayerID   string      `json:"playerId"`
	PlayerName string      `json:"playerName"`
	Cards      []WhiteCard `json:"cards"`
}

// Deck is the undealt cards. The top of each pile is the end of the slice.
type Deck struct {
	BlackCards []BlackCard `json:"blackCards"`
	WhiteCards []WhiteCard `json:"whiteCards"`
}

// DeckCount is what clients see of the deck.
type DeckCount struct {
	BlackCards int `json:"blackCards"`
	WhiteCards int `json:"whiteCards"`
}

// State is the broadcast snapshot of a card-judging game.
type State struct {
	ID                string       `json:"id"`
	Players           []Player     `json:"players"`
	SelectedPacks     []string     `json:"selectedPacks"`
	Phase             Phase        `json:"phase"`
	CurrentJudge      string       `json:"currentJudge,omitempty"`
	CurrentBlackCard  *BlackCard   `json:"currentBlackCard"`
	SubmittedCards    []Submission `json:"submittedCards"`
	RoundWinner       string       `json:"roundWinner,omitempty"`
	Deck              DeckCount    `json:"deck"`
	HandSize          int          `json:"handSize"`
	MaxRounds         int          `json:"maxRounds"`
	CurrentRound      int          `json:"currentRound"`
	WaitingForPlayers bool         `json:"waitingForPlayers"`
	GameCompleted     bool         `json:"gameCompleted"`
}

func (s State) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// record is the persisted form: the broadcast state plus the full deck.
type record struct {
	State
	Cards Deck `json:"cards"`
}
