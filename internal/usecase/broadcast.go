package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/internal/validator"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
)

// Number of pending delivery rows pulled per batch during a fan-out.
const broadcastBatchSize = 500

// BroadcastTaskData holds the necessary data for one recipient delivery.
type BroadcastTaskData struct {
	Ctx       context.Context // Context derived for the task, NOT the original request context
	Bot       *model.Bot
	Broadcast model.Broadcast
	Message   model.BroadcastMessage
	wg        *sync.WaitGroup
}

// IBroadcastWorker defines the interface for the broadcast worker pool.
type IBroadcastWorker interface {
	SubmitTask(taskData BroadcastTaskData) error
	Stop()
}

// BroadcastWorker manages the worker pool that delivers broadcast messages.
// Each worker paces itself with the configured send interval so a fan-out
// stays inside the platform's rate limits.
type BroadcastWorker struct {
	pool       *ants.PoolWithFunc
	repo       storage.BroadcastRepo
	platform   delivery.PlatformClient
	cfg        config.BroadcastPoolConfig
	baseLogger *zap.Logger
}

// Ensure BroadcastWorker implements IBroadcastWorker
var _ IBroadcastWorker = (*BroadcastWorker)(nil)

// NewBroadcastWorker creates and initializes a new broadcast worker pool.
func NewBroadcastWorker(
	cfg config.BroadcastPoolConfig,
	repo storage.BroadcastRepo,
	platform delivery.PlatformClient,
	baseLogger *zap.Logger,
) (*BroadcastWorker, error) {
	worker := &BroadcastWorker{
		repo:       repo,
		platform:   platform,
		cfg:        cfg,
		baseLogger: baseLogger.Named("broadcast_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(BroadcastTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		defer taskData.wg.Done()
		worker.processTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in broadcast worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Broadcast worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("send_interval", cfg.SendInterval),
	)
	return worker, nil
}

// SubmitTask submits one recipient delivery to the worker pool. Blocks when
// the queue is full.
func (w *BroadcastWorker) SubmitTask(taskData BroadcastTaskData) error {
	observer.SetBroadcastQueueLength(w.pool.Waiting())
	if err := w.pool.Invoke(taskData); err != nil {
		taskData.wg.Done()
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("broadcast pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke broadcast task: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the worker pool, waiting for running tasks.
func (w *BroadcastWorker) Stop() {
	w.baseLogger.Info("Stopping broadcast worker pool...")
	w.pool.Release()
	observer.SetBroadcastWorkersActive(0)
	w.baseLogger.Info("Broadcast worker pool stopped")
}

// processTask delivers one broadcast message and records the outcome on the
// delivery row. A failed recipient never aborts the rest of the fan-out.
func (w *BroadcastWorker) processTask(task BroadcastTaskData) {
	ctx := task.Ctx
	log := w.baseLogger.With(
		zap.String("broadcast_id", task.Broadcast.ID),
		zap.Int64("message_id", task.Message.ID),
		zap.Int64("chat_id", task.Message.ChatID),
	)
	observer.SetBroadcastWorkersActive(w.pool.Running())

	params := delivery.SendMessageParams{
		ChatID:    task.Message.ChatID,
		Text:      task.Broadcast.Message,
		ParseMode: task.Broadcast.ParseMode,
	}
	if task.Broadcast.ButtonText != "" && task.Broadcast.ButtonURL != "" {
		params.ReplyMarkup = &delivery.InlineKeyboardMarkup{
			InlineKeyboard: [][]delivery.InlineKeyboardButton{
				{{Text: task.Broadcast.ButtonText, URL: task.Broadcast.ButtonURL}},
			},
		}
	}

	platformMessageID, sendErr := w.platform.SendMessage(ctx, task.Bot.Token, params)
	if sendErr != nil {
		log.Warn("Broadcast delivery failed", zap.Error(sendErr))
		observer.IncBroadcastMessage(task.Bot.ID, "failed")
		if err := w.repo.MarkBroadcastMessageFailed(ctx, task.Message.ID, sendErr.Error()); err != nil {
			log.Error("Failed to record delivery failure", zap.Error(err))
		}
	} else {
		observer.IncBroadcastMessage(task.Bot.ID, "sent")
		if err := w.repo.MarkBroadcastMessageSent(ctx, task.Message.ID, platformMessageID); err != nil {
			log.Error("Failed to record delivery success", zap.Error(err))
		}
	}

	// Per-worker pacing; pool size times this interval bounds the send rate
	if w.cfg.SendInterval > 0 {
		time.Sleep(w.cfg.SendInterval)
	}
}

// BroadcastService orchestrates broadcast lifecycle: authoring, scheduling,
// fan-out over the worker pool and cancellation.
type BroadcastService struct {
	broadcasts storage.BroadcastRepo
	customers  storage.CustomerRepo
	bots       storage.BotRepo
	worker     IBroadcastWorker
}

// NewBroadcastService wires the broadcast orchestrator.
func NewBroadcastService(
	broadcasts storage.BroadcastRepo,
	customers storage.CustomerRepo,
	bots storage.BotRepo,
	worker IBroadcastWorker,
) *BroadcastService {
	return &BroadcastService{
		broadcasts: broadcasts,
		customers:  customers,
		bots:       bots,
		worker:     worker,
	}
}

// Create validates and stores a new broadcast. A scheduled_at in the future
// makes it "scheduled"; otherwise it stays a draft until dispatched.
func (s *BroadcastService) Create(ctx context.Context, b *model.Broadcast) error {
	if err := validator.Validate(b); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	if b.Status == "" {
		b.Status = model.BroadcastStatusDraft
		if b.ScheduledAt != nil {
			b.Status = model.BroadcastStatusScheduled
		}
	}
	return s.broadcasts.CreateBroadcast(ctx, b)
}

// Cancel stops a broadcast. Messages already handed to workers still finish;
// remaining batches are skipped.
func (s *BroadcastService) Cancel(ctx context.Context, id string) error {
	return s.broadcasts.UpdateBroadcastStatus(ctx, id, model.BroadcastStatusCancelled)
}

// Status returns the broadcast with its current counters.
func (s *BroadcastService) Status(ctx context.Context, id string) (*model.Broadcast, error) {
	return s.broadcasts.FindBroadcastByID(ctx, id)
}

// DispatchDue runs one scheduler tick: every scheduled broadcast whose time
// has come is fanned out. Called periodically from the main loop.
func (s *BroadcastService) DispatchDue(ctx context.Context, now time.Time) error {
	due, err := s.broadcasts.ListDueBroadcasts(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due broadcasts: %w", err)
	}
	for i := range due {
		bc := due[i]
		if err := s.Run(ctx, bc.ID); err != nil {
			logger.FromContext(ctx).Error("Broadcast dispatch failed",
				zap.String("broadcast_id", bc.ID), zap.Error(err))
		}
	}
	return nil
}

// Run fans one broadcast out to every known recipient of its bot. The start
// transition is guarded in storage, so concurrent dispatchers cannot double
// send.
func (s *BroadcastService) Run(ctx context.Context, broadcastID string) error {
	log := logger.FromContext(ctx).With(zap.String("broadcast_id", broadcastID))

	bc, err := s.broadcasts.FindBroadcastByID(ctx, broadcastID)
	if err != nil {
		return fmt.Errorf("failed to load broadcast: %w", err)
	}

	bot, err := s.bots.FindBotByID(ctx, bc.BotID)
	if err != nil {
		return fmt.Errorf("failed to load bot %s: %w", bc.BotID, err)
	}

	recipients, err := s.customers.ListBroadcastRecipients(ctx, bc.BotID)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	if err := s.broadcasts.StartBroadcast(ctx, bc.ID, len(recipients)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Another dispatcher claimed it, or it was cancelled meanwhile
			log.Debug("Broadcast not startable, skipping")
			return nil
		}
		return fmt.Errorf("failed to start broadcast: %w", err)
	}

	if len(recipients) > 0 {
		msgs := make([]model.BroadcastMessage, 0, len(recipients))
		for _, c := range recipients {
			msgs = append(msgs, model.BroadcastMessage{
				BroadcastID: bc.ID,
				BotID:       bc.BotID,
				CustomerID:  c.ID,
				ChatID:      c.ChatID,
				Status:      model.BroadcastMsgPending,
			})
		}
		if err := s.broadcasts.CreateBroadcastMessages(ctx, msgs); err != nil {
			return fmt.Errorf("failed to create delivery rows: %w", err)
		}
	}

	log.Info("Broadcast fan-out started", zap.Int("recipients", len(recipients)))

	var wg sync.WaitGroup
	for {
		// Re-check status between batches so Cancel takes effect mid-run
		current, err := s.broadcasts.FindBroadcastByID(ctx, bc.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read broadcast: %w", err)
		}
		if current.Status == model.BroadcastStatusCancelled {
			log.Info("Broadcast cancelled mid-run, stopping fan-out")
			wg.Wait()
			return nil
		}

		batch, err := s.broadcasts.ListPendingBroadcastMessages(ctx, bc.ID, broadcastBatchSize)
		if err != nil {
			wg.Wait()
			return fmt.Errorf("failed to list pending deliveries: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		// Claim the batch before sending. A row whose final mark never lands
		// stays in sending and is not pulled again, so a sticky failure
		// cannot re-send the same recipients forever.
		ids := make([]int64, 0, len(batch))
		for _, msg := range batch {
			ids = append(ids, msg.ID)
		}
		if err := s.broadcasts.MarkBroadcastMessagesSending(ctx, ids); err != nil {
			wg.Wait()
			return fmt.Errorf("failed to claim delivery batch: %w", err)
		}

		for _, msg := range batch {
			wg.Add(1)
			task := BroadcastTaskData{
				Ctx:       context.WithoutCancel(ctx),
				Bot:       bot,
				Broadcast: *current,
				Message:   msg,
				wg:        &wg,
			}
			if err := s.worker.SubmitTask(task); err != nil {
				log.Warn("Failed to submit broadcast task",
					zap.Int64("message_id", msg.ID), zap.Error(err))
				if markErr := s.broadcasts.MarkBroadcastMessageFailed(ctx, msg.ID, err.Error()); markErr != nil {
					log.Error("Failed to record submit failure", zap.Error(markErr))
				}
			}
		}
		// Let the batch drain before pulling the next one; pending rows are
		// only cleared once a worker marks them sent or failed.
		wg.Wait()
	}
	wg.Wait()

	if err := s.broadcasts.FinishBroadcast(ctx, bc.ID); err != nil {
		return fmt.Errorf("failed to finish broadcast: %w", err)
	}
	log.Info("Broadcast fan-out finished")
	return nil
}
