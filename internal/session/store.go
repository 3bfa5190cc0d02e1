// Package session persists server-issued session identifiers so a widget
// can resume its session after a restart.
//
// Values never expire here: a stale identifier is discovered by the server
// refusing or replacing the session, not by the client.
package session

import (
	"errors"
	"fmt"
	"log/slog"
)

// Key under which a cart's identifier is stored.
const CartKey = "cart_id"

var ErrEmptyKey = errors.New("session: empty key")

// Storage is a synchronous string key-value store that survives restarts.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	Close() error
}

// Store scopes a Storage to one origin, so several shops or environments
// can share a state directory without seeing each other's sessions.
type Store struct {
	storage Storage
	origin  string
	log     *slog.Logger
}

// NewStore wraps storage. An empty origin uses the keys unscoped.
func NewStore(storage Storage, origin string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		origin:  origin,
		log:     logger.With("component", "session", "origin", origin),
	}
}

func (s *Store) scoped(key string) string {
	if s.origin == "" {
		return key
	}
	return s.origin + "|" + key
}

// Get returns the stored value. Read failures are logged and reported as
// absent so the widget starts a fresh session.
func (s *Store) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok, err := s.storage.Get(s.scoped(key))
	if err != nil {
		s.log.Warn("session read failed", "key", key, "error", err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set stores value under key. Setting an empty value clears the key.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == "" {
		return s.Clear(key)
	}
	if err := s.storage.Set(s.scoped(key), value); err != nil {
		return fmt.Errorf("session: set %s: %w", key, err)
	}
	return nil
}

// Clear removes key. Clearing an absent key is not an error.
func (s *Store) Clear(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.storage.Remove(s.scoped(key)); err != nil {
		return fmt.Errorf("session: clear %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}
