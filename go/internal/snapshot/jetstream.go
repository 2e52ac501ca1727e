package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	// MaxMsgsPerSubject keeps only the newest snapshots of each session.
	MaxMsgsPerSubject int64
	MaxAge            time.Duration
	Replicas          int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:               nats.DefaultURL,
		StreamName:        "GAME_SNAPSHOTS",
		SubjectPrefix:     "games.snapshots",
		MaxReconnects:     -1,
		ReconnectWait:     2 * time.Second,
		MaxMsgsPerSubject: 1,
		MaxAge:            24 * time.Hour,
		Replicas:          1,
	}
}

// JetStreamSink publishes each snapshot to <prefix>.<variant>.<session>.
type JetStreamSink struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamSink(ctx context.Context, cfg JetStreamConfig) (*JetStreamSink, error) {
	opts := []nats.Option{
		nats.Name("partygames-snapshots"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &JetStreamSink{nc: nc, js: js, config: cfg}
	if err := s.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return s, nil
}

func (s *JetStreamSink) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:              s.config.StreamName,
		Description:       "Latest state of live party game sessions",
		Subjects:          []string{s.config.SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: s.config.MaxMsgsPerSubject,
		MaxAge:            s.config.MaxAge,
		Storage:           jetstream.FileStorage,
		Replicas:          s.config.Replicas,
	}

	_, err := s.js.Stream(ctx, s.config.StreamName)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := s.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", s.config.StreamName).Msg("created JetStream stream")
	case err != nil:
		return fmt.Errorf("look up stream: %w", err)
	default:
		if _, err := s.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
	}
	return nil
}

// Subject is where the session's snapshots are published.
func (s *JetStreamSink) Subject(snap Snapshot) string {
	return fmt.Sprintf("%s.%s.%s", s.config.SubjectPrefix, safeName(string(snap.Variant)), safeName(snap.SessionID))
}

func (s *JetStreamSink) Name() string { return "jetstream" }

func (s *JetStreamSink) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	subject := s.Subject(snap)
	ack, err := s.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Session-ID": []string{snap.SessionID},
			"Variant":    []string{string(snap.Variant)},
		},
	}, jetstream.WithExpectStream(s.config.StreamName))
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("published snapshot")
	return nil
}

func (s *JetStreamSink) Ping(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("NATS %s", s.nc.Status())
	}
	return nil
}

func (s *JetStreamSink) Close() error {
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}
