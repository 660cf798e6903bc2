package storage

import (
	"context"
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

// --- Event Repository Methods ---

// InsertEventDedup claims the (bot, source) pair with an atomic
// INSERT ... ON CONFLICT DO NOTHING. A conflict is the normal "already
// delivered" signal, reported as claimed=false rather than an error.
func (r *PostgresRepo) InsertEventDedup(ctx context.Context, botID, sourceID string) (bool, error) {
	claimed := false
	entry := model.EventDedup{
		BotID:    botID,
		SourceID: sourceID,
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bot_id"}, {Name: "source_id"}},
			DoNothing: true,
		}).Create(&entry)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		claimed = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "InsertEventDedup", operation)
	observer.ObserveDbOperationDuration("insert", "event_dedup", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to claim dedup entry",
			zap.String("bot_id", botID), zap.String("source_id", sourceID), zap.Error(err))
		return false, err
	}
	return claimed, nil
}

// CreateEntityWithEvent records one classified interaction inside a single
// transaction: the business entity (unless a recent open one already covers
// it) plus the append-only audit event. Orders skip the re-occurrence window.
func (r *PostgresRepo) CreateEntityWithEvent(ctx context.Context, p EntityCreation) (*EntityResult, error) {
	var res EntityResult

	operation := func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res = EntityResult{}
			now := utils.Now()

			switch p.Kind {
			case model.KindLead:
				covered, err := recentOpenEntity(tx, &model.Lead{}, p, now)
				if err != nil {
					return err
				}
				if covered {
					res.Suppressed = true
					break
				}
				lead := model.Lead{
					ID:         uuid.NewString(),
					BotID:      p.BotID,
					CustomerID: p.CustomerID,
					Status:     model.EntityStatusNew,
					Source:     p.Source,
					Payload:    p.Payload,
				}
				if err := tx.Create(&lead).Error; err != nil {
					return checkConstraintViolation(err)
				}
				res.EntityType = string(model.KindLead)
				res.EntityID = lead.ID

			case model.KindAppointment:
				covered, err := recentOpenEntity(tx, &model.Appointment{}, p, now)
				if err != nil {
					return err
				}
				if covered {
					res.Suppressed = true
					break
				}
				appt := model.Appointment{
					ID:         uuid.NewString(),
					BotID:      p.BotID,
					CustomerID: p.CustomerID,
					Status:     model.EntityStatusNew,
					Source:     p.Source,
					Payload:    p.Payload,
				}
				if err := tx.Create(&appt).Error; err != nil {
					return checkConstraintViolation(err)
				}
				res.EntityType = string(model.KindAppointment)
				res.EntityID = appt.ID

			case model.KindOrder:
				// Every classified order creates a row
				order := model.Order{
					ID:         uuid.NewString(),
					BotID:      p.BotID,
					CustomerID: p.CustomerID,
					Status:     model.EntityStatusNew,
					Source:     p.Source,
					Payload:    p.Payload,
				}
				if err := tx.Create(&order).Error; err != nil {
					return checkConstraintViolation(err)
				}
				res.EntityType = string(model.KindOrder)
				res.EntityID = order.ID
			}

			event := model.BotEvent{
				BotID:      p.BotID,
				Type:       model.EventTypeInteraction,
				EntityType: res.EntityType,
				EntityID:   res.EntityID,
				Payload:    p.Payload,
			}
			if res.EntityID != "" {
				event.Type = res.EntityType
				event.Status = model.EntityStatusNew
			}
			if err := tx.Create(&event).Error; err != nil {
				return checkConstraintViolation(err)
			}
			res.EventID = event.ID
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "CreateEntityWithEvent", operation)
	observer.ObserveDbOperationDuration("tx", "bot_event", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to record entity with event",
			zap.String("bot_id", p.BotID), zap.String("kind", string(p.Kind)), zap.Error(err))
		return nil, err
	}
	return &res, nil
}

// recentOpenEntity reports whether an open entity of the same kind already
// exists for (bot, customer) inside the suppression window. The read runs in
// the same transaction as the prospective insert.
func recentOpenEntity(tx *gorm.DB, entity interface{}, p EntityCreation, now time.Time) (bool, error) {
	if p.DedupWindow <= 0 {
		return false, nil
	}
	var count int64
	err := tx.Model(entity).
		Where("bot_id = ? AND customer_id = ? AND status = ? AND created_at > ?",
			p.BotID, p.CustomerID, model.EntityStatusNew, now.Add(-p.DedupWindow)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: failed to check suppression window: %w", apperrors.ErrDatabase, err)
	}
	return count > 0, nil
}
