// internal/recommend/ledger/ledger.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"

	"github.com/google/uuid"
)

var ErrWriteFailed = errors.New("LEDGER_WRITE_FAILED")

// Ledger is the authoritative append-and-supersede log of user actions on
// grants. Rows are never mutated: the current action for a (user, grant)
// pair is always derived as the latest record by timestamp, so history
// stays intact as an audit trail. An undo appends a record carrying the
// cleared flag for the action being cancelled.
type Ledger struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "ledger"}),
	}
}

// Expected table (migrations are managed out of band):
//
//	CREATE TABLE grant_interactions (
//		id         uuid PRIMARY KEY,
//		user_id    text NOT NULL,
//		grant_id   text NOT NULL,
//		action     text NOT NULL,
//		cleared    boolean NOT NULL DEFAULT false,
//		seq        bigserial NOT NULL,
//		created_at timestamptz NOT NULL DEFAULT now()
//	);
//
// seq breaks created_at ties so appends landing in the same clock tick
// keep their insertion order.
const insertRecord = `
	INSERT INTO grant_interactions (id, user_id, grant_id, action, cleared, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())`

// RecordAction appends an activating record. The toggle rule is the
// synchronizer's responsibility; this primitive only appends.
func (l *Ledger) RecordAction(ctx context.Context, userID, grantID string, action models.Action) error {
	return l.append(ctx, userID, grantID, action, false)
}

// ClearAction appends a clearing record for the named action, making the
// derived current action "none".
func (l *Ledger) ClearAction(ctx context.Context, userID, grantID string, action models.Action) error {
	return l.append(ctx, userID, grantID, action, true)
}

func (l *Ledger) append(ctx context.Context, userID, grantID string, action models.Action, cleared bool) error {
	if action == models.ActionNone {
		return fmt.Errorf("%w: action none is derived, never written", ErrWriteFailed)
	}

	_, err := l.db.ExecContext(ctx, insertRecord,
		uuid.NewString(), userID, grantID, string(action), cleared)
	if err != nil {
		l.logger.Error("ledger append failed", map[string]interface{}{
			"userId":  userID,
			"grantId": grantID,
			"action":  action,
			"cleared": cleared,
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrWriteFailed, commonerrors.NewLedgerWriteFailedError(err))
	}
	return nil
}

const currentActionQuery = `
	SELECT action, cleared
	FROM grant_interactions
	WHERE user_id = $1 AND grant_id = $2
	ORDER BY created_at DESC, seq DESC
	LIMIT 1`

// CurrentAction derives the active action for a pair from the latest
// record. A cleared latest record means no active action.
func (l *Ledger) CurrentAction(ctx context.Context, userID, grantID string) (models.Action, error) {
	var action string
	var cleared bool

	err := l.db.QueryRowContext(ctx, currentActionQuery, userID, grantID).Scan(&action, &cleared)
	if err == sql.ErrNoRows {
		return models.ActionNone, nil
	}
	if err != nil {
		return models.ActionNone, fmt.Errorf("current action lookup: %w", err)
	}
	if cleared {
		return models.ActionNone, nil
	}
	return models.Action(action), nil
}

const activeItemsQuery = `
	SELECT grant_id, action FROM (
		SELECT DISTINCT ON (grant_id) grant_id, action, cleared
		FROM grant_interactions
		WHERE user_id = $1
		ORDER BY grant_id, created_at DESC, seq DESC
	) latest
	WHERE NOT cleared`

// ActiveItems returns every grant whose latest record for the user is an
// active (non-cleared) action, keyed by grant ID.
func (l *Ledger) ActiveItems(ctx context.Context, userID string) (map[string]models.Action, error) {
	rows, err := l.db.QueryContext(ctx, activeItemsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("active items lookup: %w", err)
	}
	defer rows.Close()

	active := make(map[string]models.Action)
	for rows.Next() {
		var grantID, action string
		if err := rows.Scan(&grantID, &action); err != nil {
			return nil, fmt.Errorf("active items scan: %w", err)
		}
		active[grantID] = models.Action(action)
	}
	return active, rows.Err()
}

const historyQuery = `
	SELECT id, user_id, grant_id, action, cleared, created_at
	FROM grant_interactions
	WHERE user_id = $1 AND grant_id = $2
	ORDER BY created_at ASC, seq ASC`

// History returns the full audit trail for a pair, oldest first.
func (l *Ledger) History(ctx context.Context, userID, grantID string) ([]models.InteractionRecord, error) {
	rows, err := l.db.QueryContext(ctx, historyQuery, userID, grantID)
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	defer rows.Close()

	var records []models.InteractionRecord
	for rows.Next() {
		var rec models.InteractionRecord
		var action string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.GrantID, &action, &rec.Cleared, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		rec.Action = models.Action(action)
		records = append(records, rec)
	}
	return records, rows.Err()
}
