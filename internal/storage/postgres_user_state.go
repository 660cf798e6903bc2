package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// --- User State Repository Methods ---

// GetUserState returns the stored conversation position for (bot, user).
// An expired row is reported the same way as a missing one.
func (r *PostgresRepo) GetUserState(ctx context.Context, botID string, userID int64) (*model.UserState, error) {
	var state model.UserState

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("bot_id = ? AND user_id = ?", botID, userID).
			First(&state)
		return result.Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "GetUserState", operation)
	observer.ObserveDbOperationDuration("find", "user_state", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user state for bot %s user %d: %w", apperrors.ErrNotFound, botID, userID, err)
		}
		logger.FromContext(ctx).Error("Failed to get user state", zap.String("bot_id", botID), zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to get user state: %w", apperrors.ErrDatabase, err)
	}

	if state.Expired(utils.Now()) {
		return nil, fmt.Errorf("%w: user state for bot %s user %d expired", apperrors.ErrNotFound, botID, userID)
	}

	return &state, nil
}

// SaveUserState stores the conversation position, refreshing its TTL.
func (r *PostgresRepo) SaveUserState(ctx context.Context, botID string, userID int64, stateKey string, ttl time.Duration) error {
	now := utils.Now()
	state := model.UserState{
		BotID:     botID,
		UserID:    userID,
		StateKey:  stateKey,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bot_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state_key", "expires_at", "updated_at"}),
		}).Create(&state)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SaveUserState", operation)
	observer.ObserveDbOperationDuration("save", "user_state", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save user state after retries",
			zap.String("bot_id", botID), zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// DeleteExpiredUserStates removes rows whose TTL has lapsed. Run periodically.
func (r *PostgresRepo) DeleteExpiredUserStates(ctx context.Context) (int64, error) {
	var deleted int64

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("expires_at <= ?", utils.Now()).
			Delete(&model.UserState{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "DeleteExpiredUserStates", operation)
	observer.ObserveDbOperationDuration("delete", "user_state", time.Since(startTime), err)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete expired user states: %w", apperrors.ErrDatabase, err)
	}
	return deleted, nil
}
