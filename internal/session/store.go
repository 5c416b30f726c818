// Package session persists the messaging driver's session handle between
// runs so an authenticated session can be resumed instead of re-established.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"github.com/example/groupmsg/internal/domain/delivery"
)

const (
	MaxAge     = 14 * 24 * time.Hour
	recordName = "groupmsg_session"
)

type record struct {
	ID      string
	State   []byte
	Channel string
	SavedAt time.Time
}

// Store keeps one session handle in a signed and encrypted file.
type Store struct {
	path   string
	sc     *securecookie.SecureCookie
	logger *slog.Logger
}

func NewStore(path string, hashKey, blockKey []byte, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(MaxAge.Seconds()))
	// handles can carry a serialized browser profile
	sc.MaxLength(1 << 20)
	return &Store{path: path, sc: sc, logger: logger}
}

// Load returns the saved session for channel. A missing, expired, tampered
// or foreign file yields ok=false and no error.
func (s *Store) Load(channel string) (delivery.Session, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return delivery.Session{}, false, nil
	}
	if err != nil {
		return delivery.Session{}, false, fmt.Errorf("read session file: %w", err)
	}
	var rec record
	if err := s.sc.Decode(recordName, string(b), &rec); err != nil {
		s.logger.Warn("session: discarding unreadable session file", "path", s.path, "error", err)
		return delivery.Session{}, false, nil
	}
	if rec.Channel != channel {
		return delivery.Session{}, false, nil
	}
	return delivery.Session{ID: rec.ID, State: rec.State}, true, nil
}

func (s *Store) Save(channel string, sess delivery.Session) error {
	enc, err := s.sc.Encode(recordName, record{ID: sess.ID, State: sess.State, Channel: channel, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return atomicWrite(s.path, []byte(enc))
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeriveKeys expands a single secret into a 32-byte hash key and a 32-byte
// AES-256 block key.
func DeriveKeys(secret []byte) (hashKey, blockKey []byte, err error) {
	if len(secret) < 16 {
		return nil, nil, fmt.Errorf("session secret must be at least 16 bytes")
	}
	r := hkdf.New(sha256.New, secret, nil, []byte("groupmsg session v1"))
	hashKey = make([]byte, 32)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, err
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, err
	}
	return hashKey, blockKey, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
