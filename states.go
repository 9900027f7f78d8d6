package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// StateStore issues and consumes the single-use CSRF tokens binding an OAuth
// authorization request to its callback.
type StateStore struct {
	db DB
}

func NewStateStore(db DB) *StateStore {
	return &StateStore{db: db}
}

// Issue mints a random state token valid for ttl.
func (s *StateStore) Issue(ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := s.db.InsertState(token, time.Now().Add(ttl)); err != nil {
		return "", fmt.Errorf("storing oauth state: %w", err)
	}
	return token, nil
}

// ValidateAndConsume atomically deletes the state if it exists and has not
// expired. Unknown, expired and already-consumed states all report false;
// callers cannot tell which, and that is deliberate.
func (s *StateStore) ValidateAndConsume(token string) (bool, error) {
	ok, err := s.db.ConsumeState(token)
	if err != nil {
		return false, fmt.Errorf("consuming oauth state: %w", err)
	}
	return ok, nil
}

// SweepExpired reclaims expired state rows. Consumption re-checks expiry on
// its own, so the sweep is space reclamation only.
func (s *StateStore) SweepExpired() (int64, error) {
	return s.db.DeleteExpiredStates()
}

// RunSweeper deletes expired states on every tick until stop is closed.
// A failed sweep logs and waits for the next tick.
func (s *StateStore) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := s.SweepExpired()
			if err != nil {
				log.Printf("oauth state sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("cleaned up %d expired oauth states", n)
			}
		}
	}
}
