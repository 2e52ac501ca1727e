package gameerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		kind        gameerr.Kind
		operational bool
	}{
		{"validation", gameerr.Validation("Must submit exactly %d cards", 2), gameerr.KindValidation, true},
		{"invalid operation", gameerr.InvalidOperation("vote", "no round is in progress"), gameerr.KindInvalidOperation, true},
		{"not found", gameerr.NotFound("Game", "abc"), gameerr.KindNotFound, true},
		{"game full", gameerr.GameFull(12), gameerr.KindGameFull, true},
		{"wrapped", fmt.Errorf("join: %w", gameerr.NotFound("Player", "p1")), gameerr.KindNotFound, true},
		{"plain error", errors.New("boom"), gameerr.KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, gameerr.KindOf(tt.err))
			assert.Equal(t, tt.operational, gameerr.IsOperational(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Invalid operation: next_question. game is over",
		gameerr.InvalidOperation("next_question", "game is over").Error())
	assert.Equal(t, "Game with id abc not found", gameerr.NotFound("Game", "abc").Error())
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", gameerr.Validation("Category is required"))

	assert.ErrorIs(t, err, gameerr.ErrValidation)
	assert.NotErrorIs(t, err, gameerr.ErrNotFound)
}
