package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileSink writes each session to <dir>/games/<variant>/<id>.json. A payload
// identical to the last one written for the session is skipped.
type FileSink struct {
	dir string

	mu     sync.Mutex
	hashes map[string][sha256.Size]byte
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{
		dir:    dir,
		hashes: make(map[string][sha256.Size]byte),
	}
}

func (f *FileSink) Name() string { return "file" }

// Path returns where the session's snapshot lives.
func (f *FileSink) Path(s Snapshot) string {
	return filepath.Join(f.dir, "games", safeName(string(s.Variant)), safeName(s.SessionID)+".json")
}

func (f *FileSink) Save(ctx context.Context, s Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := string(s.Variant) + "/" + s.SessionID
	sum := sha256.Sum256(s.Payload)

	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.hashes[key]; ok && prev == sum {
		return nil
	}

	path := f.Path(s)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := bytes.NewReader(s.Payload).WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	f.hashes[key] = sum
	log.Debug().Str("session_id", s.SessionID).Str("path", path).Msg("wrote snapshot file")
	return nil
}

// safeName keeps a caller-supplied id from escaping the snapshot directory or
// splitting a subject. Bytes outside [A-Za-z0-9-] become _xx hex escapes, '_'
// included, so distinct ids never share a name.
func safeName(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
