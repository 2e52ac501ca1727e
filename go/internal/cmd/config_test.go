package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"PORT", "GAME_DATA_DIR", "LOG_LEVEL", "LOG_FORMAT", "MAX_PLAYERS_PER_GAME",
	"ROUND_TIMEOUT", "SCORING_DELAY", "HAND_SIZE", "MAX_ROUNDS", "MIN_PLAYERS",
	"GAME_SAVE_INTERVAL", "SNAPSHOT_FILE_ENABLED", "SNAPSHOT_POSTGRES_ENABLED",
	"SNAPSHOT_NATS_ENABLED", "NATS_URL",
}

func clearEnv(t *testing.T) {
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "./data", cfg.GameDataDir)
	assert.Equal(t, 12, cfg.Game.MaxPlayers)
	assert.Equal(t, 10*time.Second, cfg.Game.RoundTimeout)
	assert.Equal(t, 3*time.Second, cfg.Game.ScoringDelay)
	assert.Equal(t, 7, cfg.Game.HandSize)
	assert.Equal(t, 10, cfg.Game.MaxRounds)
	assert.Equal(t, 3, cfg.Game.MinPlayers)
	assert.Equal(t, 5*time.Second, cfg.Snapshots.Interval)
	assert.True(t, cfg.Snapshots.FileEnabled)
	assert.False(t, cfg.Snapshots.PostgresEnabled)
	assert.False(t, cfg.Snapshots.NATSEnabled)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "4000"
game:
  max_players_per_game: 8
  round_timeout: 20s
  hand_size: 5
snapshots:
  interval: 1m
  nats_enabled: true
`), 0o644))

	t.Setenv("HAND_SIZE", "9")
	t.Setenv("SCORING_DELAY", "1500")
	t.Setenv("SNAPSHOT_FILE_ENABLED", "false")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, 8, cfg.Game.MaxPlayers)
	assert.Equal(t, 20*time.Second, cfg.Game.RoundTimeout)
	assert.Equal(t, 9, cfg.Game.HandSize, "env wins over file")
	assert.Equal(t, 1500*time.Millisecond, cfg.Game.ScoringDelay)
	assert.Equal(t, time.Minute, cfg.Snapshots.Interval)
	assert.True(t, cfg.Snapshots.NATSEnabled)
	assert.False(t, cfg.Snapshots.FileEnabled)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"too few players", "MIN_PLAYERS", "1", "min_players"},
		{"zero rounds", "MAX_ROUNDS", "0", "max_rounds"},
		{"negative rounds", "MAX_ROUNDS", "-3", "max_rounds"},
		{"zero hand", "HAND_SIZE", "0", "hand_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game: ["), 0o644))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestGameConfigMapsSettings(t *testing.T) {
	cfg := defaultConfig()
	cfg.Game.MaxPlayers = 6

	gc := gameConfig(cfg)
	assert.Equal(t, 6, gc.Voting.MaxPlayers)
	assert.Equal(t, 6, gc.Judging.MaxPlayers)
	assert.Equal(t, cfg.Game.RoundTimeout, gc.Voting.RoundTimeout)
	assert.Equal(t, cfg.Game.ScoringDelay, gc.Judging.ScoringDelay)
}
