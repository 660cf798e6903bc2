package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// --- Webhook Log Repository Methods ---

// SaveWebhookLog appends one delivery-attempt audit row. Payloads are
// expected to arrive already masked and truncated by the delivery client.
func (r *PostgresRepo) SaveWebhookLog(ctx context.Context, entry model.WebhookLog) error {
	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SaveWebhookLog", operation)
	observer.ObserveDbOperationDuration("insert", "webhook_log", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save webhook log",
			zap.String("bot_id", entry.BotID), zap.Error(err))
		return err
	}
	return nil
}

// FindWebhookLogsByBotID returns the most recent delivery attempts for a bot.
func (r *PostgresRepo) FindWebhookLogsByBotID(ctx context.Context, botID string, limit int) ([]model.WebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []model.WebhookLog

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("bot_id = ?", botID).
			Order("created_at DESC").
			Limit(limit).
			Find(&logs).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindWebhookLogsByBotID", operation)
	observer.ObserveDbOperationDuration("list", "webhook_log", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list webhook logs: %w", apperrors.ErrDatabase, err)
	}
	return logs, nil
}
