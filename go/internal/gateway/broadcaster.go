package gateway

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers session events to attached connections. Publish is
// called from the session actor, so per-session delivery order is the order
// in which mutations completed.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish sends each event to the acting connection first, then to every
// other connection of the session. All recipients get the same bytes.
func (b *Broadcaster) Publish(sessionID, origin string, events []models.Event) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Str("op", ev.Op).Msg("failed to marshal event for broadcast")
			continue
		}

		if origin != "" {
			if c, ok := b.registry.lookup(sessionID, origin); ok {
				b.deliver(c, data)
			}
		}

		delivered := 0
		b.registry.ForEach(sessionID, func(c Client) {
			if c.ID() == origin {
				return
			}
			if b.deliver(c, data) {
				delivered++
			}
		})

		log.Debug().
			Str("session_id", sessionID).
			Str("op", ev.Op).
			Int("connections", delivered).
			Msg("event broadcasted")
	}
}

// Send delivers ev to c alone.
func (b *Broadcaster) Send(c Client, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID()).Str("op", ev.Op).Msg("failed to marshal event")
		return
	}
	b.deliver(c, data)
}

func (b *Broadcaster) deliver(c Client, data []byte) bool {
	if c.Enqueue(data) {
		return true
	}
	// Connection is slow or gone.
	log.Warn().
		Str("connection_id", c.ID()).
		Str("player_id", c.PlayerID()).
		Str("session_id", c.SessionID()).
		Msg("connection send buffer full, closing connection")
	c.Close(websocket.ClosePolicyViolation, "send buffer full")
	return false
}
