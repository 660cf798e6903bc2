package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// --- Bot Repository Methods ---

// FindBotByID loads one bot definition by its ID.
func (r *PostgresRepo) FindBotByID(ctx context.Context, id string) (*model.Bot, error) {
	var bot model.Bot

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&bot)
		return result.Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindBotByID", operation)
	observer.ObserveDbOperationDuration("find", "bot", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: bot %s: %w", apperrors.ErrNotFound, id, err)
		}
		logger.FromContext(ctx).Error("Failed to find bot", zap.String("bot_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to find bot: %w", apperrors.ErrDatabase, err)
	}

	return &bot, nil
}
