// internal/grants/store/profilestore.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const profileCacheKeyPrefix = "user:prefs:"

// ProfileStore reads preference profiles from Postgres with a Redis
// read-through cache. A user without a saved profile gets the default
// profile; that is not an error.
type ProfileStore struct {
	db     *sql.DB
	cache  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewProfileStore(db *sql.DB, cache *redis.Client, ttl time.Duration, log logger.Logger) *ProfileStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProfileStore{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "profile-store"}),
	}
}

func cacheKey(userID string) string { return profileCacheKeyPrefix + userID }

// GetPreferenceProfile resolves a user's profile: cache, then database,
// then the default. Cache failures degrade to a database read.
func (s *ProfileStore) GetPreferenceProfile(ctx context.Context, userID string) (*models.PreferenceProfile, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey(userID)).Result()
		if err == nil {
			var profile models.PreferenceProfile
			if jerr := json.Unmarshal([]byte(cached), &profile); jerr == nil {
				return &profile, nil
			}
			// Corrupt cache entry: fall through to the database.
			_ = s.cache.Del(ctx, cacheKey(userID)).Err()
		} else if err != redis.Nil {
			s.logger.Warn("profile cache read failed", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	profile, err := s.loadFromDB(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheProfile(ctx, profile)
	return profile, nil
}

func (s *ProfileStore) loadFromDB(ctx context.Context, userID string) (*models.PreferenceProfile, error) {
	const query = `
		SELECT topics, funding_min, funding_max, agencies,
		       deadline_tolerance_days,
		       accept_unspecified_funding, accept_unspecified_deadline
		FROM user_preferences
		WHERE user_id = $1`

	profile := &models.PreferenceProfile{UserID: userID}
	var topics, agencies []string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		pq.Array(&topics),
		&profile.FundingMin,
		&profile.FundingMax,
		pq.Array(&agencies),
		&profile.DeadlineToleranceDays,
		&profile.AcceptUnspecifiedFunding,
		&profile.AcceptUnspecifiedDeadline,
	)
	if err == sql.ErrNoRows {
		return models.DefaultProfile(userID), nil
	}
	if err != nil {
		return nil, errors.NewProfileLoadFailedError(userID, err)
	}

	profile.Topics = topics
	profile.Agencies = agencies
	return profile, nil
}

func (s *ProfileStore) cacheProfile(ctx context.Context, profile *models.PreferenceProfile) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(profile.UserID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn("profile cache write failed", map[string]interface{}{
			"userId": profile.UserID,
			"error":  err.Error(),
		})
	}
}

// InvalidateProfile drops the cached profile so the next read sees fresh
// preferences.
func (s *ProfileStore) InvalidateProfile(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey(userID)).Err()
}
