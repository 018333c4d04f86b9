package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnavailable is returned by every operation of a store that could not be
// opened at startup.
var ErrUnavailable = errors.New("store unavailable")

// Store persists sessions keyed by (userID, mode) and per-user consent.
// Sessions are read-modify-write without locking; concurrent appends for the
// same key are applied in arrival order.
type Store interface {
	// FindSession returns nil, nil when no session exists for the key.
	FindSession(ctx context.Context, userID string, mode Mode) (*Session, error)
	// UpsertSession creates an empty session if absent and returns the current one.
	UpsertSession(ctx context.Context, userID string, mode Mode) (*Session, error)
	// AppendMessage adds msg to the end of the session, creating it if absent.
	AppendMessage(ctx context.Context, userID string, mode Mode, msg Message) error
	// DeleteSession removes the session and all its messages. Deleting an
	// absent session is not an error.
	DeleteSession(ctx context.Context, userID string, mode Mode) error

	// GetConsent returns nil, nil when the user never recorded a decision.
	GetConsent(ctx context.Context, userID string) (*ConsentRecord, error)
	UpsertConsent(ctx context.Context, rec ConsentRecord) error

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend from the database URL: mongodb:// and mongodb+srv://
// URLs open a MongoStore, "memory" opens a MemoryStore, and anything else is
// treated as a SQLite data source.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "memory" {
		return NewMemoryStore(), nil
	}
	if strings.HasPrefix(databaseURL, "mongodb://") || strings.HasPrefix(databaseURL, "mongodb+srv://") {
		return NewMongoStore(ctx, databaseURL, mongoDatabaseName(databaseURL))
	}
	return NewSQLiteStore(databaseURL)
}

func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

// Unavailable returns a Store that fails every call with ErrUnavailable,
// wrapping cause. It lets the server start in degraded mode.
func Unavailable(cause error) Store {
	return unavailableStore{err: fmt.Errorf("%w: %v", ErrUnavailable, cause)}
}

type unavailableStore struct{ err error }

func (u unavailableStore) FindSession(context.Context, string, Mode) (*Session, error) {
	return nil, u.err
}

func (u unavailableStore) UpsertSession(context.Context, string, Mode) (*Session, error) {
	return nil, u.err
}

func (u unavailableStore) AppendMessage(context.Context, string, Mode, Message) error { return u.err }
func (u unavailableStore) DeleteSession(context.Context, string, Mode) error          { return u.err }

func (u unavailableStore) GetConsent(context.Context, string) (*ConsentRecord, error) {
	return nil, u.err
}

func (u unavailableStore) UpsertConsent(context.Context, ConsentRecord) error { return u.err }
func (u unavailableStore) Ping(context.Context) error                         { return u.err }
func (u unavailableStore) Close() error                                       { return nil }
