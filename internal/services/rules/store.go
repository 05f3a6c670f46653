package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"transaction-reconciliation-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrRuleStoreUnavailable is returned when the durable store cannot be
// reached and no snapshot has ever been loaded.
var ErrRuleStoreUnavailable = errors.New("rule store unavailable")

// ErrStaleSnapshot signals that a refresh failed and the last good snapshot
// is being served. Callers should treat it as a warning, not a failure.
var ErrStaleSnapshot = errors.New("rule store refresh failed, serving stale snapshot")

// Fetcher loads enabled rules from the durable store in evaluation order.
type Fetcher interface {
	ListEnabled() ([]models.MatchingRule, error)
}

// Store serves a TTL-cached, priority-ordered snapshot of the enabled
// matching rules. It is owned by the reconciliation engine's construction
// context and passed by handle, never held as package state.
type Store struct {
	mu          sync.Mutex
	fetch       Fetcher
	ttl         time.Duration
	snapshot    []models.MatchingRule
	loadedAt    time.Time
	hasSnapshot bool
	log         *logrus.Entry
}

// DefaultTTL is the cache window used when none is configured.
const DefaultTTL = 5 * time.Minute

func NewStore(fetch Fetcher, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		fetch: fetch,
		ttl:   ttl,
		log:   logrus.WithField("component", "rule_store"),
	}
}

// GetActiveRules returns the enabled rules sorted by priority descending.
// Within the TTL window the cached snapshot is served. When a refresh fails
// the last good snapshot is returned together with ErrStaleSnapshot;
// without any snapshot the error is ErrRuleStoreUnavailable.
func (s *Store) GetActiveRules() ([]models.MatchingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSnapshot && time.Since(s.loadedAt) < s.ttl {
		return s.copySnapshot(), nil
	}

	rules, err := s.fetch.ListEnabled()
	if err != nil {
		if s.hasSnapshot {
			s.log.WithError(err).Warn("rule refresh failed, reusing last snapshot")
			return s.copySnapshot(), fmt.Errorf("%w: %v", ErrStaleSnapshot, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRuleStoreUnavailable, err)
	}

	s.snapshot = rules
	s.loadedAt = time.Now()
	s.hasSnapshot = true
	return s.copySnapshot(), nil
}

// Invalidate forces the next GetActiveRules call to re-fetch from the
// durable store. The last snapshot is kept for the stale fallback.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Time{}
}

func (s *Store) copySnapshot() []models.MatchingRule {
	out := make([]models.MatchingRule, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}
