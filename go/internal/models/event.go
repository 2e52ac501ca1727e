package models

// Server-to-client event names.
const (
	OpGameState    = "game_state"
	OpVoteCast     = "vote_cast"
	OpNewRound     = "new_round"
	OpRoundTimeout = "round_timeout"
	OpError        = "error"
	OpPong         = "pong"
)

// Event is the outbound message envelope. Only the fields relevant to Op are
// set; the rest are omitted on the wire.
type Event struct {
	Op        string           `json:"op"`
	Game      any              `json:"game,omitempty"`
	Player    any              `json:"player,omitempty"`
	Vote      string           `json:"vote,omitempty"`
	Message   string           `json:"message,omitempty"`
	Code      string           `json:"code,omitempty"`
	Operation string           `json:"operation,omitempty"`
	Status    *ReconnectStatus `json:"status,omitempty"`
}

// ReconnectStatus answers reconnect_status. Reconnection is client driven, so
// the server always reports an idle state.
type ReconnectStatus struct {
	Reconnecting  bool `json:"reconnecting"`
	AttemptCount  int  `json:"attemptCount"`
	NextAttemptIn int  `json:"nextAttemptIn"`
}

// GameState carries a full state snapshot. The snapshot must not share
// mutable memory with the live session.
func GameState(snapshot any) Event {
	return Event{Op: OpGameState, Game: snapshot}
}

func VoteCast(player any, vote string) Event {
	return Event{Op: OpVoteCast, Player: player, Vote: vote}
}

func NewRound() Event {
	return Event{Op: OpNewRound}
}

func RoundTimeout(message string) Event {
	return Event{Op: OpRoundTimeout, Message: message}
}

func Pong() Event {
	return Event{Op: OpPong}
}

func ErrorEvent(code, message, operation string) Event {
	return Event{Op: OpError, Code: code, Message: message, Operation: operation}
}

func ReconnectStatusEvent() Event {
	return Event{Op: OpReconnectStatus, Status: &ReconnectStatus{}}
}
