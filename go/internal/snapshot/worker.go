package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// FlushTimeout bounds the final flush run by Stop.
	FlushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		MaxRetries:   2,
		RetryDelay:   200 * time.Millisecond,
		FlushTimeout: 5 * time.Second,
	}
}

// Stats reports what the worker has done so far.
type Stats struct {
	Passes    uint64    `json:"passes"`
	Saved     uint64    `json:"saved"`
	Failed    uint64    `json:"failed"`
	LastFlush time.Time `json:"last_flush"`
	Running   bool      `json:"running"`
}

// Worker snapshots live sessions on a fixed interval and hands each snapshot
// to every sink. Sink failures are logged and counted, never fatal.
type Worker struct {
	source  Source
	sinks   []Sink
	metrics MetricsCollector
	config  Config
	clock   clockwork.Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    Stats
}

func NewWorker(source Source, sinks []Sink, cfg Config, clock clockwork.Clock, metrics MetricsCollector) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Worker{
		source:  source,
		sinks:   sinks,
		metrics: metrics,
		config:  cfg,
		clock:   clock,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("snapshot worker already running")
	}
	w.running = true
	w.stats.Running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	// Created here so the ticker exists once Start returns.
	ticker := w.clock.NewTicker(w.config.Interval)

	w.wg.Add(1)
	go w.run(ctx, ticker)

	names := make([]string, 0, len(w.sinks))
	for _, s := range w.sinks {
		names = append(names, s.Name())
	}
	log.Info().
		Dur("interval", w.config.Interval).
		Strs("sinks", names).
		Msg("snapshot worker started")

	return nil
}

// Stop halts the ticker and runs one last flush.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("snapshot worker not running")
	}
	w.running = false
	w.stats.Running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.FlushTimeout)
	defer cancel()
	w.Flush(ctx)

	log.Info().Msg("snapshot worker stopped")
	return nil
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) run(ctx context.Context, ticker clockwork.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.Flush(ctx)
		}
	}
}

// Flush takes one snapshot pass and returns how many snapshots every sink
// accepted.
func (w *Worker) Flush(ctx context.Context) int {
	start := w.clock.Now()

	snaps, err := w.source.Snapshots(ctx)
	if err != nil {
		log.Warn().Err(err).Int("snapshots", len(snaps)).Msg("snapshot pass interrupted")
	}

	var saved, failed int
	for _, snap := range snaps {
		ok := true
		for _, sink := range w.sinks {
			if err := w.saveWithRetry(ctx, sink, snap); err != nil {
				ok = false
				log.Error().
					Err(err).
					Str("sink", sink.Name()).
					Str("session_id", snap.SessionID).
					Msg("failed to save snapshot")
			}
		}
		if ok {
			saved++
		} else {
			failed++
		}
	}

	duration := w.clock.Since(start)
	w.metrics.RecordFlush(len(snaps), duration)

	w.mu.Lock()
	w.stats.Passes++
	w.stats.Saved += uint64(saved)
	w.stats.Failed += uint64(failed)
	w.stats.LastFlush = w.clock.Now()
	w.mu.Unlock()

	if len(snaps) > 0 {
		log.Debug().
			Int("total", len(snaps)).
			Int("saved", saved).
			Dur("duration", duration).
			Msg("flushed session snapshots")
	}
	return saved
}

func (w *Worker) saveWithRetry(ctx context.Context, sink Sink, snap Snapshot) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		start := w.clock.Now()
		err := sink.Save(ctx, snap)
		w.metrics.RecordSave(sink.Name(), err == nil, w.clock.Since(start))
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("session_id", snap.SessionID).
				Int("attempt", attempt+1).
				Msg("failed to save snapshot, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
