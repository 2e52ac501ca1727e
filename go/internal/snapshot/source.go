package snapshot

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/rs/zerolog/log"
)

// StoreSource snapshots every session of a store that has at least one
// connected player.
type StoreSource struct {
	store *session.Store
	clock clockwork.Clock
}

func NewStoreSource(store *session.Store, clock clockwork.Clock) *StoreSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StoreSource{store: store, clock: clock}
}

func (s *StoreSource) Snapshots(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	for _, sess := range s.store.Sessions() {
		payload, connected, err := sess.Snapshot(ctx)
		if err != nil {
			if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
				return out, err
			}
			log.Error().Err(err).Str("session_id", sess.ID()).Msg("failed to snapshot session")
			continue
		}
		if connected == 0 {
			continue
		}
		out = append(out, Snapshot{
			SessionID: sess.ID(),
			Variant:   sess.Variant(),
			Payload:   payload,
			TakenAt:   s.clock.Now().UTC(),
		})
	}
	return out, nil
}
