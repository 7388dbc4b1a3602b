// Package preferences stores per-user data preferences. Records live under
// users/{uid} in every backend; a user without a stored record gets the
// defaults.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Store.Get when no record exists.
	ErrNotFound = errors.New("preferences: not found")
	// ErrAnonymous is returned when an operation needs a signed-in user.
	ErrAnonymous = errors.New("preferences: sign in to manage your data preferences")
)

// DefaultAllowAITraining applies to users with no stored record.
const DefaultAllowAITraining = true

// Record is one user's preferences.
type Record struct {
	UserID          string    `json:"userId"`
	AllowAITraining bool      `json:"allowAiTraining"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Default returns the record used for uid when nothing is stored.
func Default(uid string) Record {
	return Record{UserID: uid, AllowAITraining: DefaultAllowAITraining}
}

// Store persists records keyed by user id.
type Store interface {
	Get(ctx context.Context, uid string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

// Service applies defaults and identity rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wraps store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Get returns uid's record, or the defaults if none is stored. Anonymous
// users always see the defaults.
func (s *Service) Get(ctx context.Context, uid string) (Record, error) {
	if uid == "" {
		return Default(""), nil
	}

	rec, err := s.store.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return Default(uid), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("preferences: get %s: %w", uid, err)
	}

	return rec, nil
}

// SetAllowAITraining stores the training preference for uid.
func (s *Service) SetAllowAITraining(ctx context.Context, uid string, allow bool) (Record, error) {
	if uid == "" {
		return Record{}, ErrAnonymous
	}

	rec := Record{UserID: uid, AllowAITraining: allow, UpdatedAt: s.now()}
	if err := s.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("preferences: put %s: %w", uid, err)
	}

	return rec, nil
}

// Close closes the underlying store.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
