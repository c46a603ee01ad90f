// internal/recommend/activeset/manager.go
package activeset

import (
	"context"
	"sync"
	"time"

	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/common/metrics"
	"grantmatch-workers/internal/models"
)

// CandidateSource fetches the next unscored candidate batch, excluding the
// given grant IDs. Backed by the Elasticsearch grant store.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, profile *models.PreferenceProfile, excludeIDs []string, limit int) ([]models.Grant, error)
}

// LedgerView is the read side of the interaction ledger.
type LedgerView interface {
	ActiveItems(ctx context.Context, userID string) (map[string]models.Action, error)
}

// ProfileSource resolves a user's preference profile (default when unset).
type ProfileSource interface {
	GetPreferenceProfile(ctx context.Context, userID string) (*models.PreferenceProfile, error)
}

// Scorer ranks a candidate batch against a profile.
type Scorer interface {
	ScoreBatch(grants []models.Grant, profile *models.PreferenceProfile, log logger.Logger) []models.ScoredGrant
}

// Replenishment state per user.
type setState int

const (
	stateStable setState = iota
	stateNeedsReplenishment
	stateReplenishing
)

// userSet is one user's active recommendation set. Single writer at a
// time, guarded by mu.
type userSet struct {
	mu            sync.Mutex
	entries       []models.RecommendationEntry
	state         setState
	pendingNeeded int
	nextRank      int
}

// Config tunes the manager.
type Config struct {
	// TargetCount is the bound on every user's active set.
	TargetCount int
	// FetchTimeout bounds one replenishment fetch cycle.
	FetchTimeout time.Duration
	// FetchFactor multiplies the deficit to give scoring headroom after
	// exclusions; the resulting batch size is capped at 100.
	FetchFactor int
}

func (c *Config) applyDefaults() {
	if c.TargetCount <= 0 {
		c.TargetCount = 10
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.FetchFactor <= 0 {
		c.FetchFactor = 3
	}
}

// Manager maintains the bounded, replenishing active recommendation set
// per user. Sets are session-scoped: created on first use, discarded by
// EndSession, never shared across identities.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*userSet

	cfg        Config
	candidates CandidateSource
	ledger     LedgerView
	profiles   ProfileSource
	scorer     Scorer
	logger     logger.Logger

	// wg tracks in-flight replenishment goroutines for tests/shutdown.
	wg sync.WaitGroup
}

func NewManager(cfg Config, candidates CandidateSource, ledger LedgerView, profiles ProfileSource, scorer Scorer, log logger.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		sessions:   make(map[string]*userSet),
		cfg:        cfg,
		candidates: candidates,
		ledger:     ledger,
		profiles:   profiles,
		scorer:     scorer,
		logger:     log.WithFields(map[string]interface{}{"component": "activeset"}),
	}
}

// TargetCount exposes the configured set bound.
func (m *Manager) TargetCount() int { return m.cfg.TargetCount }

// Wait blocks until in-flight replenishments finish. Used on shutdown and
// in tests.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) sessionFor(userID string) *userSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.sessions[userID]
	if !ok {
		us = &userSet{nextRank: 1}
		m.sessions[userID] = us
	}
	return us
}

// EndSession discards a user's in-memory set. The ledger is unaffected; a
// fresh session reconciles from it.
func (m *Manager) EndSession(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// ActiveSet returns the ordered entries of the user's set, as a copy.
func (m *Manager) ActiveSet(userID string) []models.RecommendationEntry {
	us := m.sessionFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	out := make([]models.RecommendationEntry, len(us.entries))
	copy(out, us.entries)
	return out
}

// OnInteraction evicts the grant from the user's set the moment it becomes
// ledger-active and schedules an asynchronous replenishment for the
// deficit. The caller is never blocked on the fetch.
func (m *Manager) OnInteraction(userID, grantID string) {
	us := m.sessionFor(userID)

	us.mu.Lock()
	for i, e := range us.entries {
		if e.GrantID == grantID {
			us.entries = append(us.entries[:i], us.entries[i+1:]...)
			break
		}
	}
	deficit := m.cfg.TargetCount - len(us.entries)
	if deficit <= 0 {
		us.mu.Unlock()
		return
	}

	if us.state != stateStable {
		// Coalesce into the scheduled or in-flight request: take the max,
		// never issue a duplicate fetch.
		if deficit > us.pendingNeeded {
			us.pendingNeeded = deficit
		}
		us.mu.Unlock()
		return
	}

	us.state = stateNeedsReplenishment
	if deficit > us.pendingNeeded {
		us.pendingNeeded = deficit
	}
	us.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
		defer cancel()
		m.replenishLoop(ctx, userID, us)
	}()
}

// Replenish runs one synchronous replenishment cycle for the user,
// attempting to append up to needed entries. Used for the initial fill and
// by the async loop. Failures are absorbed: the set stays below target and
// the next triggering interaction retries.
func (m *Manager) Replenish(ctx context.Context, userID string, needed int) {
	us := m.sessionFor(userID)

	us.mu.Lock()
	if us.state != stateStable {
		if needed > us.pendingNeeded {
			us.pendingNeeded = needed
		}
		us.mu.Unlock()
		return
	}
	us.state = stateNeedsReplenishment
	if needed > us.pendingNeeded {
		us.pendingNeeded = needed
	}
	us.mu.Unlock()

	m.replenishLoop(ctx, userID, us)
}

// replenishLoop drains coalesced demand: after each cycle it re-checks the
// pending count so requests absorbed mid-flight are served without a
// duplicate scheduling round.
func (m *Manager) replenishLoop(ctx context.Context, userID string, us *userSet) {
	for {
		us.mu.Lock()
		needed := us.pendingNeeded
		us.pendingNeeded = 0
		if deficit := m.cfg.TargetCount - len(us.entries); deficit < needed {
			needed = deficit
		}
		if needed <= 0 {
			us.state = stateStable
			us.mu.Unlock()
			return
		}
		us.state = stateReplenishing
		us.mu.Unlock()

		added, err := m.replenishOnce(ctx, userID, us, needed)
		if err != nil {
			metrics.ReplenishmentFailures.Inc()
			m.logger.Warn("replenishment failed, set stays below target", map[string]interface{}{
				"userId": userID,
				"needed": needed,
				"error":  err.Error(),
			})
			m.settle(us)
			return
		}
		if added == 0 {
			// Candidate source exhausted. Not fatal; retry on the next
			// triggering interaction.
			m.settle(us)
			return
		}
		metrics.ReplenishmentsTotal.Inc()
	}
}

func (m *Manager) settle(us *userSet) {
	us.mu.Lock()
	us.state = stateStable
	us.pendingNeeded = 0
	us.mu.Unlock()
}

// replenishOnce performs one fetch+score cycle. Exclusions are recomputed
// from the ledger's state at fetch time, not at schedule time, so results
// arriving out of submission order stay correct.
func (m *Manager) replenishOnce(ctx context.Context, userID string, us *userSet, needed int) (int, error) {
	profile, err := m.profiles.GetPreferenceProfile(ctx, userID)
	if err != nil {
		return 0, err
	}

	ledgerActive, err := m.ledger.ActiveItems(ctx, userID)
	if err != nil {
		return 0, err
	}

	us.mu.Lock()
	exclude := make([]string, 0, len(us.entries)+len(ledgerActive))
	seen := make(map[string]bool, len(us.entries)+len(ledgerActive))
	for _, e := range us.entries {
		exclude = append(exclude, e.GrantID)
		seen[e.GrantID] = true
	}
	us.mu.Unlock()
	for id := range ledgerActive {
		if !seen[id] {
			exclude = append(exclude, id)
			seen[id] = true
		}
	}

	limit := needed * m.cfg.FetchFactor
	if limit > 100 {
		limit = 100
	}

	batch, err := m.candidates.FetchCandidates(ctx, profile, exclude, limit)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	scored := m.scorer.ScoreBatch(batch, profile, m.logger)

	// Append under the user lock, preserving prior insertion order and
	// re-checking the bound: the set may have shrunk or grown while the
	// fetch was in flight.
	us.mu.Lock()
	defer us.mu.Unlock()

	current := make(map[string]bool, len(us.entries))
	for _, e := range us.entries {
		current[e.GrantID] = true
	}

	added := 0
	for _, sg := range scored {
		if len(us.entries) >= m.cfg.TargetCount || added >= needed {
			break
		}
		if current[sg.Grant.ID] || ledgerActive[sg.Grant.ID] != "" {
			continue
		}
		us.entries = append(us.entries, models.RecommendationEntry{
			GrantID: sg.Grant.ID,
			Score:   sg.Score,
			Rank:    us.nextRank,
		})
		us.nextRank++
		added++
	}

	metrics.ActiveSetSize.Observe(float64(len(us.entries)))
	return added, nil
}
