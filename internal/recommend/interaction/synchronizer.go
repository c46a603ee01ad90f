// internal/recommend/interaction/synchronizer.go
package interaction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/common/metrics"
	"grantmatch-workers/internal/models"
)

// Ledger is the write/read surface of the interaction ledger the
// synchronizer commits to.
type Ledger interface {
	RecordAction(ctx context.Context, userID, grantID string, action models.Action) error
	ClearAction(ctx context.Context, userID, grantID string, action models.Action) error
	ActiveItems(ctx context.Context, userID string) (map[string]models.Action, error)
}

// SetNotifier receives the eviction/replenishment trigger after a commit.
type SetNotifier interface {
	OnInteraction(userID, grantID string)
}

// Per-item commit state. A Pending write that fails rolls back to the
// prior committed state, never unconditionally to none.
type commitState int

const (
	stateNone commitState = iota
	statePending
	stateCommitted
)

type pairKey struct {
	userID  string
	grantID string
}

type pairState struct {
	mu    sync.Mutex
	state commitState
}

// userView is the optimistic local view of a user's active actions,
// lazily reconciled from the ledger. It may disagree with the ledger only
// inside the window between optimistic apply and a failed commit, which
// rollback closes.
type userView struct {
	mu      sync.Mutex
	loaded  bool
	byGrant map[string]models.Action
}

// Result reports the outcome of an apply.
type Result struct {
	// Effective is the action now active for the pair after the toggle
	// rule: none when the call undid the previous action.
	Effective models.Action `json:"effective"`
	// Previous is the action that was active before the call.
	Previous models.Action `json:"previous"`
}

// Synchronizer applies user actions optimistically, commits them to the
// ledger, and rolls the local view back when a commit fails. Operations on
// the same (user, grant) pair serialize in submission order; distinct
// pairs proceed concurrently.
type Synchronizer struct {
	mu    sync.Mutex
	pairs map[pairKey]*pairState
	views map[string]*userView

	ledger Ledger
	sets   SetNotifier
	logger logger.Logger
}

func NewSynchronizer(led Ledger, sets SetNotifier, log logger.Logger) *Synchronizer {
	return &Synchronizer{
		pairs:  make(map[pairKey]*pairState),
		views:  make(map[string]*userView),
		ledger: led,
		sets:   sets,
		logger: log.WithFields(map[string]interface{}{"component": "interaction-sync"}),
	}
}

func (s *Synchronizer) pairFor(userID, grantID string) *pairState {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{userID: userID, grantID: grantID}
	ps, ok := s.pairs[key]
	if !ok {
		ps = &pairState{}
		s.pairs[key] = ps
	}
	return ps
}

func (s *Synchronizer) viewFor(userID string) *userView {
	s.mu.Lock()
	defer s.mu.Unlock()
	uv, ok := s.views[userID]
	if !ok {
		uv = &userView{byGrant: make(map[string]models.Action)}
		s.views[userID] = uv
	}
	return uv
}

// ensureLoaded reconciles the view from the ledger on first touch.
func (s *Synchronizer) ensureLoaded(ctx context.Context, userID string, uv *userView) error {
	uv.mu.Lock()
	defer uv.mu.Unlock()
	if uv.loaded {
		return nil
	}
	active, err := s.ledger.ActiveItems(ctx, userID)
	if err != nil {
		return fmt.Errorf("reconcile view: %w", err)
	}
	for id, action := range active {
		uv.byGrant[id] = action
	}
	uv.loaded = true
	return nil
}

// ApplyAction applies the toggle rule, updates the local view
// optimistically, commits to the ledger, and triggers set maintenance on
// success. On commit failure the view is restored to its pre-apply
// snapshot and a retryable error is surfaced; no replenishment is
// triggered for a change that didn't happen.
func (s *Synchronizer) ApplyAction(ctx context.Context, userID, grantID string, requested models.Action) (*Result, error) {
	if _, err := models.ParseAction(string(requested)); err != nil {
		return nil, err
	}

	ps := s.pairFor(userID, grantID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	uv := s.viewFor(userID)
	if err := s.ensureLoaded(ctx, userID, uv); err != nil {
		return nil, err
	}

	uv.mu.Lock()
	previous, hadPrevious := uv.byGrant[grantID]
	if !hadPrevious {
		previous = models.ActionNone
	}

	// Toggle rule: re-applying the active action undoes it.
	effective := requested
	if requested == previous {
		effective = models.ActionNone
	}

	// Optimistic apply.
	if effective == models.ActionNone {
		delete(uv.byGrant, grantID)
	} else {
		uv.byGrant[grantID] = effective
	}
	uv.mu.Unlock()

	ps.state = statePending

	var err error
	if effective == models.ActionNone {
		err = s.ledger.ClearAction(ctx, userID, grantID, requested)
	} else {
		err = s.ledger.RecordAction(ctx, userID, grantID, effective)
	}

	if err != nil {
		// Roll back to the pre-apply snapshot, not to none.
		uv.mu.Lock()
		if hadPrevious {
			uv.byGrant[grantID] = previous
		} else {
			delete(uv.byGrant, grantID)
		}
		uv.mu.Unlock()
		if previous == models.ActionNone {
			ps.state = stateNone
		} else {
			ps.state = stateCommitted
		}

		metrics.InteractionCommits.WithLabelValues(string(requested), "failed").Inc()
		s.logger.Warn("ledger commit failed, view rolled back", map[string]interface{}{
			"userId":  userID,
			"grantId": grantID,
			"action":  requested,
			"error":   err.Error(),
		})
		return nil, err
	}

	ps.state = stateCommitted
	metrics.InteractionCommits.WithLabelValues(string(requested), "committed").Inc()

	// Evict from the recommendation set and schedule replenishment. An
	// undo evicts nothing but is harmless to signal.
	s.sets.OnInteraction(userID, grantID)

	return &Result{Effective: effective, Previous: previous}, nil
}

// CurrentAction reports the active action for a pair from the local view.
func (s *Synchronizer) CurrentAction(ctx context.Context, userID, grantID string) (models.Action, error) {
	uv := s.viewFor(userID)
	if err := s.ensureLoaded(ctx, userID, uv); err != nil {
		return models.ActionNone, err
	}
	uv.mu.Lock()
	defer uv.mu.Unlock()
	if a, ok := uv.byGrant[grantID]; ok {
		return a, nil
	}
	return models.ActionNone, nil
}

// GrantsByAction lists the grant IDs whose active action matches, in
// stable lexical order.
func (s *Synchronizer) GrantsByAction(ctx context.Context, userID string, action models.Action) ([]string, error) {
	if _, err := models.ParseAction(string(action)); err != nil {
		return nil, err
	}

	uv := s.viewFor(userID)
	if err := s.ensureLoaded(ctx, userID, uv); err != nil {
		return nil, err
	}

	uv.mu.Lock()
	defer uv.mu.Unlock()
	var ids []string
	for id, a := range uv.byGrant {
		if a == action {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// EndSession drops the user's optimistic view and pair states. The ledger
// is authoritative; the next read reconciles.
func (s *Synchronizer) EndSession(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, userID)
	for key := range s.pairs {
		if key.userID == userID {
			delete(s.pairs, key)
		}
	}
}
