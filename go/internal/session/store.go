package session

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/models"
	"github.com/mcdev12/partygames/go/internal/timer"
	"github.com/rs/zerolog/log"
)

const mailboxSize = 64

// Store owns every live session. Sessions are created on first join and live
// until the store is closed.
type Store struct {
	registry  *game.Registry
	timers    *timer.Scheduler
	publisher Publisher
	clock     clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(ctx context.Context, registry *game.Registry, timers *timer.Scheduler, publisher Publisher, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Store{
		registry:  registry,
		timers:    timers,
		publisher: publisher,
		clock:     clock,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreate returns the session id, creating it with variant when absent.
// For an existing session variant is ignored and the session keeps its own;
// created reports which case applied.
func (s *Store) GetOrCreate(id string, variant models.Variant) (sess *Session, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		if sess.variant != variant {
			log.Warn().
				Str("session_id", id).
				Str("variant", string(sess.variant)).
				Str("requested_variant", string(variant)).
				Msg("variant mismatch for existing session, keeping session variant")
		}
		return sess, false, nil
	}

	if err := s.ctx.Err(); err != nil {
		return nil, false, ErrClosed
	}

	g, err := s.registry.New(variant, id)
	if err != nil {
		return nil, false, err
	}

	sess = &Session{
		id:        id,
		variant:   variant,
		game:      g,
		timers:    s.timers,
		publisher: s.publisher,
		createdAt: s.clock.Now(),
		mailbox:   make(chan job, mailboxSize),
		done:      s.ctx.Done(),
	}
	s.sessions[id] = sess

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.run(s.ctx)
	}()

	log.Info().Str("session_id", id).Str("variant", string(variant)).Msg("created session")
	return sess, true, nil
}

// Get returns an existing session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions lists the live sessions ordered by id.
func (s *Store) Sessions() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops every session actor and all pending timers.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
	s.timers.Stop()
	log.Info().Msg("session store closed")
}
