package voting

import (
	"time"

	"github.com/mcdev12/partygames/go/internal/catalog"
)

// Voting actions.
const (
	OpSelectCategories  = "select_catagories"
	OpSelectCategory    = "select_category"
	OpConfirmSelections = "confirm_selections"
	OpNextQuestion      = "next_question"
	OpVote              = "vote"
)

// RoundSlot is the timer slot for the round countdown.
const RoundSlot = "round"

const TimeoutMessage = "Round timed out - proceeding to next question"

// Option is a vote choice.
type Option int

const (
	OptionHave    Option = 1
	OptionHaveNot Option = 2
	OptionKinda   Option = 3
)

func (o Option) Valid() bool {
	return o >= OptionHave && o <= OptionKinda
}

func (o Option) String() string {
	switch o {
	case OptionHave:
		return "Have"
	case OptionHaveNot:
		return "Have Not"
	case OptionKinda:
		return "Kinda"
	default:
		return ""
	}
}

// Points is the score contribution of the option.
func (o Option) Points() float64 {
	switch o {
	case OptionHave:
		return 1
	case OptionKinda:
		return 0.5
	default:
		return 0
	}
}

type Config struct {
	RoundTimeout time.Duration
	MaxPlayers   int
}

func DefaultConfig() Config {
	return Config{
		RoundTimeout: 10 * time.Second,
		MaxPlayers:   12,
	}
}

// RoundVote is a player's choice in the current round.
type RoundVote struct {
	Option Option `json:"option,omitempty"`
	Vote   string `json:"vote,omitempty"`
	Voted  bool   `json:"voted"`
}

type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Connected bool      `json:"connected"`
	ThisRound RoundVote `json:"this_round"`
}

// Question is the current prompt. The zero value is the empty sentinel shown
// before the first round and after the game is exhausted.
type Question struct {
	Category string `json:"catagory"`
	Content  string `json:"content"`
}

func (q Question) Empty() bool {
	return q.Category == "" && q.Content == ""
}

// Round is an archived round.
type Round struct {
	Question Question `json:"question"`
	Players  []Player `json:"players"`
}

// State is the serialized form of a voting game. Broadcast snapshots leave
// Data empty and carry History only once the game is completed.
type State struct {
	ID                string             `json:"id"`
	Players           []Player           `json:"players"`
	Categories        []string           `json:"catagories"`
	CurrentQuestion   Question           `json:"current_question"`
	History           []Round            `json:"history,omitempty"`
	CategorySelect    bool               `json:"catagory_select"`
	GameCompleted     bool               `json:"game_completed"`
	WaitingForPlayers bool               `json:"waiting_for_players"`
	TimeoutStart      *time.Time         `json:"timeout_start,omitempty"`
	TimeoutDuration   int64              `json:"timeout_duration,omitempty"`
	Round             int                `json:"round"`
	Data              catalog.Categories `json:"data,omitempty"`
}

// Phase derives the coarse state-machine phase.
func (s State) Phase() string {
	switch {
	case s.GameCompleted:
		return "game_over"
	case s.CategorySelect:
		return "category_select"
	case s.WaitingForPlayers:
		return "waiting"
	default:
		return "ready"
	}
}

// Player returns the player with id, if present.
func (s State) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
