package models

import (
	"encoding/json"

	"github.com/mcdev12/partygames/go/internal/gameerr"
)

// Actions understood by every variant.
const (
	OpJoinGame        = "join_game"
	OpResetGame       = "reset_game"
	OpPing            = "ping"
	OpReconnectStatus = "reconnect_status"
)

// Action is one inbound player action. Payload holds the full inbound frame so
// each engine can decode its own fields.
type Action struct {
	Op       string
	PlayerID string
	Payload  json.RawMessage
}

// JoinRequest is the payload of join_game.
type JoinRequest struct {
	Create     bool   `json:"create"`
	PlayerName string `json:"playername"`
}

// Decode unmarshals the action payload into v.
func (a Action) Decode(v any) error {
	if len(a.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return gameerr.Validation("Invalid %s payload: %v", a.Op, err)
	}
	return nil
}
