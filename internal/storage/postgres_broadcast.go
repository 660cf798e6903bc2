package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// --- Broadcast Repository Methods ---

// CreateBroadcast stores a new broadcast in draft or scheduled status.
func (r *PostgresRepo) CreateBroadcast(ctx context.Context, b *model.Broadcast) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BroadcastStatusDraft
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "CreateBroadcast", operation)
	observer.ObserveDbOperationDuration("insert", "broadcast", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create broadcast", zap.String("bot_id", b.BotID), zap.Error(err))
		return err
	}
	return nil
}

// FindBroadcastByID loads one broadcast.
func (r *PostgresRepo) FindBroadcastByID(ctx context.Context, id string) (*model.Broadcast, error) {
	var b model.Broadcast

	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindBroadcastByID", operation)
	observer.ObserveDbOperationDuration("find", "broadcast", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: broadcast %s: %w", apperrors.ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("%w: failed to find broadcast: %w", apperrors.ErrDatabase, err)
	}
	return &b, nil
}

// ListDueBroadcasts returns scheduled broadcasts whose start time has passed.
func (r *PostgresRepo) ListDueBroadcasts(ctx context.Context, now time.Time) ([]model.Broadcast, error) {
	var due []model.Broadcast

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", model.BroadcastStatusScheduled, now).
			Order("scheduled_at ASC").
			Find(&due).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListDueBroadcasts", operation)
	observer.ObserveDbOperationDuration("list", "broadcast", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list due broadcasts: %w", apperrors.ErrDatabase, err)
	}
	return due, nil
}

// UpdateBroadcastStatus moves a broadcast to a new lifecycle status.
func (r *PostgresRepo) UpdateBroadcastStatus(ctx context.Context, id, status string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Broadcast{}).
			Where("id = ?", id).
			Update("status", status)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return guardNotFound("broadcast", id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "UpdateBroadcastStatus", operation)
	observer.ObserveDbOperationDuration("update", "broadcast", time.Since(startTime), err)
	return err
}

// StartBroadcast marks a broadcast as sending. The transition is guarded so
// a cancelled or already-running broadcast is not restarted.
func (r *PostgresRepo) StartBroadcast(ctx context.Context, id string, total int) error {
	now := utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Broadcast{}).
			Where("id = ? AND status IN ?", id, []string{model.BroadcastStatusDraft, model.BroadcastStatusScheduled}).
			Updates(map[string]interface{}{
				"status":      model.BroadcastStatusSending,
				"started_at":  now,
				"total_count": total,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return guardNotFound("startable broadcast", id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "StartBroadcast", operation)
	observer.ObserveDbOperationDuration("update", "broadcast", time.Since(startTime), err)
	return err
}

// FinishBroadcast marks a sending broadcast as done.
func (r *PostgresRepo) FinishBroadcast(ctx context.Context, id string) error {
	now := utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Broadcast{}).
			Where("id = ? AND status = ?", id, model.BroadcastStatusSending).
			Updates(map[string]interface{}{
				"status":      model.BroadcastStatusDone,
				"finished_at": now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "FinishBroadcast", operation)
	observer.ObserveDbOperationDuration("update", "broadcast", time.Since(startTime), err)
	return err
}

// CreateBroadcastMessages inserts the per-recipient delivery rows in batches.
func (r *PostgresRepo) CreateBroadcastMessages(ctx context.Context, msgs []model.BroadcastMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	operation := func() error {
		if err := r.db.WithContext(ctx).CreateInBatches(msgs, 500).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "CreateBroadcastMessages", operation)
	observer.ObserveDbOperationDuration("insert", "broadcast_message", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create broadcast messages",
			zap.String("broadcast_id", msgs[0].BroadcastID), zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}
	return nil
}

// ListPendingBroadcastMessages returns the next batch of undelivered rows.
func (r *PostgresRepo) ListPendingBroadcastMessages(ctx context.Context, broadcastID string, limit int) ([]model.BroadcastMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	var msgs []model.BroadcastMessage

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("broadcast_id = ? AND status = ?", broadcastID, model.BroadcastMsgPending).
			Order("id ASC").
			Limit(limit).
			Find(&msgs).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListPendingBroadcastMessages", operation)
	observer.ObserveDbOperationDuration("list", "broadcast_message", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list pending broadcast messages: %w", apperrors.ErrDatabase, err)
	}
	return msgs, nil
}

// MarkBroadcastMessagesSending claims a dequeued batch. Claimed rows drop out
// of the pending listing, so a delivery whose final status never lands is not
// re-sent on the next pull.
func (r *PostgresRepo) MarkBroadcastMessagesSending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.BroadcastMessage{}).
			Where("id IN ? AND status = ?", ids, model.BroadcastMsgPending).
			Update("status", model.BroadcastMsgSending)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkBroadcastMessagesSending", operation)
	observer.ObserveDbOperationDuration("update", "broadcast_message", time.Since(startTime), err)
	return err
}

// MarkBroadcastMessageSent records a successful delivery and bumps the parent
// broadcast's sent counter in the same transaction.
func (r *PostgresRepo) MarkBroadcastMessageSent(ctx context.Context, id int64, platformMessageID int64) error {
	operation := func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var msg model.BroadcastMessage
			if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
				return checkConstraintViolation(err)
			}
			updates := map[string]interface{}{
				"status":              model.BroadcastMsgSent,
				"platform_message_id": platformMessageID,
				"error":               "",
			}
			if err := tx.Model(&model.BroadcastMessage{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return checkConstraintViolation(err)
			}
			if err := tx.Model(&model.Broadcast{}).Where("id = ?", msg.BroadcastID).
				Update("sent_count", gorm.Expr("sent_count + 1")).Error; err != nil {
				return checkConstraintViolation(err)
			}
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkBroadcastMessageSent", operation)
	observer.ObserveDbOperationDuration("update", "broadcast_message", time.Since(startTime), err)
	return err
}

// MarkBroadcastMessageFailed records a failed delivery and bumps the parent
// broadcast's failed counter in the same transaction.
func (r *PostgresRepo) MarkBroadcastMessageFailed(ctx context.Context, id int64, sendErr string) error {
	operation := func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var msg model.BroadcastMessage
			if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
				return checkConstraintViolation(err)
			}
			updates := map[string]interface{}{
				"status": model.BroadcastMsgFailed,
				"error":  sendErr,
			}
			if err := tx.Model(&model.BroadcastMessage{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return checkConstraintViolation(err)
			}
			if err := tx.Model(&model.Broadcast{}).Where("id = ?", msg.BroadcastID).
				Update("failed_count", gorm.Expr("failed_count + 1")).Error; err != nil {
				return checkConstraintViolation(err)
			}
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkBroadcastMessageFailed", operation)
	observer.ObserveDbOperationDuration("update", "broadcast_message", time.Since(startTime), err)
	return err
}

// FindBroadcastMessageByPlatformMessageID correlates an inbound interaction
// back to the broadcast delivery that produced the message.
func (r *PostgresRepo) FindBroadcastMessageByPlatformMessageID(ctx context.Context, botID string, platformMessageID int64) (*model.BroadcastMessage, error) {
	var msg model.BroadcastMessage

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("bot_id = ? AND platform_message_id = ?", botID, platformMessageID).
			First(&msg).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindBroadcastMessageByPlatformMessageID", operation)
	observer.ObserveDbOperationDuration("find", "broadcast_message", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: broadcast message for platform message %d: %w", apperrors.ErrNotFound, platformMessageID, err)
		}
		return nil, fmt.Errorf("%w: failed to find broadcast message: %w", apperrors.ErrDatabase, err)
	}
	return &msg, nil
}

// RegisterBroadcastClick increments the click counter on a delivery row.
func (r *PostgresRepo) RegisterBroadcastClick(ctx context.Context, id int64) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.BroadcastMessage{}).
			Where("id = ?", id).
			Update("click_count", gorm.Expr("click_count + 1"))
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "RegisterBroadcastClick", operation)
	observer.ObserveDbOperationDuration("update", "broadcast_message", time.Since(startTime), err)
	return err
}

// RegisterBroadcastEngagement counts the first engagement for a delivery row.
// The guarded update makes repeat engagements no-ops.
func (r *PostgresRepo) RegisterBroadcastEngagement(ctx context.Context, id int64) (bool, error) {
	counted := false

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.BroadcastMessage{}).
			Where("id = ? AND engaged_count = 0", id).
			Update("engaged_count", 1)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		counted = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "RegisterBroadcastEngagement", operation)
	observer.ObserveDbOperationDuration("update", "broadcast_message", time.Since(startTime), err)
	if err != nil {
		return false, err
	}
	return counted, nil
}

// guardNotFound wraps a zero-rows guard failure as a not-found
// error that the retry policy will not re-attempt.
func guardNotFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, what, id)
}
