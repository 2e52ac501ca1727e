package models_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mcdev12/partygames/go/internal/gameerr"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlayerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "trimmed", input: "  Alice ", want: "Alice"},
		{name: "max length", input: strings.Repeat("a", 50), want: strings.Repeat("a", 50)},
		{name: "multibyte counts runes", input: strings.Repeat("é", 50), want: strings.Repeat("é", 50)},
		{name: "empty", input: "", wantErr: "Player name is required"},
		{name: "whitespace", input: "   ", wantErr: "Player name is required"},
		{name: "too long", input: strings.Repeat("a", 51), wantErr: "Player name too long (max 50 characters)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.NormalizePlayerName(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.True(t, errors.Is(err, gameerr.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVariant(t *testing.T) {
	v, ok := models.ParseVariant("never-have-i-ever")
	assert.True(t, ok)
	assert.Equal(t, models.VariantVoting, v)

	v, ok = models.ParseVariant("cards-against-humanity")
	assert.True(t, ok)
	assert.Equal(t, models.VariantJudging, v)

	_, ok = models.ParseVariant("charades")
	assert.False(t, ok)
}

func TestOutcomeDirectives(t *testing.T) {
	var out models.Outcome
	out.Emit(models.VoteCast("p1", "Have"), models.NewRound())
	out.Disarm("round")
	out.Arm("round", 10*time.Second, 4)

	assert.Equal(t, []string{models.OpVoteCast, models.OpNewRound}, out.Ops())
	require.Len(t, out.Timers, 2)
	assert.True(t, out.Timers[0].Cancel)
	assert.Equal(t, models.TimerOp{
		Slot:  "round",
		After: 10 * time.Second,
		Fire:  models.Fire{Slot: "round", Round: 4},
	}, out.Timers[1])
}

func TestActionDecode(t *testing.T) {
	a := models.Action{Op: models.OpJoinGame, Payload: json.RawMessage(`{"op":"join_game","create":true,"playername":"Al"}`)}
	var req models.JoinRequest
	require.NoError(t, a.Decode(&req))
	assert.Equal(t, models.JoinRequest{Create: true, PlayerName: "Al"}, req)

	bad := models.Action{Op: "vote", Payload: json.RawMessage(`{"option":"loud"}`)}
	var vote struct {
		Option int `json:"option"`
	}
	err := bad.Decode(&vote)
	assert.True(t, errors.Is(err, gameerr.ErrValidation))
	assert.Contains(t, err.Error(), "Invalid vote payload")
}

func TestEventWireShape(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
		want  string
	}{
		{name: "pong", event: models.Pong(), want: `{"op":"pong"}`},
		{name: "error", event: models.ErrorEvent("NOT_FOUND", "gone", "vote"), want: `{"op":"error","message":"gone","code":"NOT_FOUND","operation":"vote"}`},
		{name: "timeout", event: models.RoundTimeout("late"), want: `{"op":"round_timeout","message":"late"}`},
		{name: "reconnect", event: models.ReconnectStatusEvent(), want: `{"op":"reconnect_status","status":{"reconnecting":false,"attemptCount":0,"nextAttemptIn":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
