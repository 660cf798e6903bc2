package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// --- Customer Repository Methods ---

// UpsertCustomer creates or refreshes the customer profile behind an update.
// Existing non-empty identity fields win over incoming values; last_seen_at
// is always bumped. The persisted row is returned.
func (r *PostgresRepo) UpsertCustomer(ctx context.Context, customer model.Customer) (*model.Customer, error) {
	var saved model.Customer

	operation := func() error {
		result, err := r.upsertCustomerTx(ctx, customer)
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Two first-sight upserts raced: both missed the locked read and
			// the loser's insert hit the unique index. The winner's row is
			// committed now, so a second pass takes the merge branch.
			result, err = r.upsertCustomerTx(ctx, customer)
		}
		if err != nil {
			return err
		}
		saved = result
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "UpsertCustomer", operation)
	observer.ObserveDbOperationDuration("upsert", "customer", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to upsert customer after retries", zap.Error(err))
		return nil, err
	}
	return &saved, nil
}

// upsertCustomerTx runs one locked read-then-write attempt in its own
// transaction.
func (r *PostgresRepo) upsertCustomerTx(ctx context.Context, customer model.Customer) (model.Customer, error) {
	var saved model.Customer

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return saved, fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
	}
	var txErr error
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback() // Attempt rollback
			panic(r)      // Re-panic
		} else if txErr != nil {
			if rbErr := tx.Rollback().Error; rbErr != nil {
				logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
			}
		}
	}()

	var existing model.Customer
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("bot_id = ? AND platform_user_id = ?", customer.BotID, customer.PlatformUserID).
		First(&existing)
	findErr := result.Error

	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			// New customer
			customer.ID = uuid.NewString()
			customer.LastSeenAt = utils.Now()
			if createErr := tx.Create(&customer).Error; createErr != nil {
				txErr = checkConstraintViolation(createErr)
				return saved, txErr
			}
			saved = customer
		} else {
			txErr = fmt.Errorf("%w: failed to lock customer row: %w", apperrors.ErrDatabase, findErr)
			return saved, txErr
		}
	} else {
		// Merge: existing non-empty fields win, empty ones are filled
		existing.FillFrom(customer)
		existing.LastSeenAt = utils.Now()
		if len(customer.LastMetadata) > 0 {
			existing.LastMetadata = customer.LastMetadata
		}
		if updateErr := tx.Save(&existing).Error; updateErr != nil {
			txErr = checkConstraintViolation(updateErr)
			return saved, txErr
		}
		saved = existing
	}

	if commitErr := tx.Commit().Error; commitErr != nil {
		txErr = fmt.Errorf("%w: failed to commit upsert transaction: %w", apperrors.ErrDatabase, commitErr)
		return saved, txErr
	}
	return saved, nil
}

// FindCustomerByID loads one customer by primary key.
func (r *PostgresRepo) FindCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	var customer model.Customer

	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindCustomerByID", operation)
	observer.ObserveDbOperationDuration("find", "customer", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %s: %w", apperrors.ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("%w: failed to find customer: %w", apperrors.ErrDatabase, err)
	}
	return &customer, nil
}

// ListBroadcastRecipients returns the bot's customers that have a known chat.
func (r *PostgresRepo) ListBroadcastRecipients(ctx context.Context, botID string) ([]model.Customer, error) {
	var customers []model.Customer

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("bot_id = ? AND chat_id <> 0", botID).
			Order("created_at ASC").
			Find(&customers).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListBroadcastRecipients", operation)
	observer.ObserveDbOperationDuration("list", "customer", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list recipients: %w", apperrors.ErrDatabase, err)
	}
	return customers, nil
}
