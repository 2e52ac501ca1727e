package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/partygames/go/internal/catalog"
	"github.com/mcdev12/partygames/go/internal/game"
	"github.com/mcdev12/partygames/go/internal/game/judging"
	"github.com/mcdev12/partygames/go/internal/game/voting"
	"github.com/mcdev12/partygames/go/internal/gateway"
	"github.com/mcdev12/partygames/go/internal/session"
	"github.com/mcdev12/partygames/go/internal/snapshot"
	"github.com/mcdev12/partygames/go/internal/timer"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Catalog   *catalog.Catalog
	Store     *session.Store
	Gateway   *gateway.Service
	Snapshots *snapshot.Worker
	Health    *snapshot.HealthChecker

	closers []func()
}

func gameConfig(cfg Config) game.Config {
	return game.Config{
		Voting: voting.Config{
			RoundTimeout: cfg.Game.RoundTimeout,
			MaxPlayers:   cfg.Game.MaxPlayers,
		},
		Judging: judging.Config{
			HandSize:     cfg.Game.HandSize,
			MaxRounds:    cfg.Game.MaxRounds,
			MinPlayers:   cfg.Game.MinPlayers,
			MaxPlayers:   cfg.Game.MaxPlayers,
			ScoringDelay: cfg.Game.ScoringDelay,
		},
	}
}

// setupServices wires catalog → engines → session store → gateway, plus the
// snapshot worker and its sinks.
func setupServices(ctx context.Context, cfg Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	cat, err := catalog.Load(cfg.GameDataDir)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	registry := gateway.NewRegistry()
	broadcaster := gateway.NewBroadcaster(registry)
	games := game.DefaultRegistry(gameConfig(cfg), cat, clock)
	store := session.NewStore(ctx, games, timer.NewScheduler(clock), broadcaster, clock)

	s := &Services{
		Catalog: cat,
		Store:   store,
		Gateway: gateway.NewService(gateway.DefaultConfig(), registry, broadcaster, store, cat),
	}

	sinks, err := s.setupSinks(ctx, cfg)
	if err != nil {
		s.close()
		store.Close()
		return nil, err
	}

	snapCfg := snapshot.DefaultConfig()
	snapCfg.Interval = cfg.Snapshots.Interval
	metrics := snapshot.NewMemoryMetrics()
	s.Snapshots = snapshot.NewWorker(snapshot.NewStoreSource(store, clock), sinks, snapCfg, clock, metrics)
	s.Health = snapshot.NewHealthChecker(s.Snapshots, sinks, metrics, clock, 3*snapCfg.Interval)

	return s, nil
}

func (s *Services) setupSinks(ctx context.Context, cfg Config) ([]snapshot.Sink, error) {
	var sinks []snapshot.Sink

	if cfg.Snapshots.FileEnabled {
		sinks = append(sinks, snapshot.NewFileSink(cfg.GameDataDir))
	}

	if cfg.Snapshots.PostgresEnabled {
		pg, err := snapshot.NewPostgresSink(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres snapshot sink: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		sinks = append(sinks, pg)
	}

	if cfg.Snapshots.NATSEnabled {
		jsCfg := snapshot.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Snapshots.NATSURL
		js, err := snapshot.NewJetStreamSink(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("jetstream snapshot sink: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := js.Close(); err != nil {
				log.Error().Err(err).Msg("close jetstream sink")
			}
		})
		sinks = append(sinks, js)
	}

	return sinks, nil
}

func (s *Services) Start(ctx context.Context) error {
	return s.Snapshots.Start(ctx)
}

// Shutdown flushes a final snapshot while players are still attached, then
// closes connections, sessions and sinks.
func (s *Services) Shutdown(ctx context.Context) {
	if err := s.Snapshots.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop snapshot worker")
	}
	if err := s.Gateway.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown")
	}
	s.Store.Close()
	s.close()
}

func (s *Services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

const shutdownTimeout = 10 * time.Second
