package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	deliverymock "github.com/BogdanMod/lego-bot-sub001/internal/delivery/mock"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	storagemock "github.com/BogdanMod/lego-bot-sub001/internal/storage/mock"
)

func testBroadcastPoolConfig() config.BroadcastPoolConfig {
	return config.BroadcastPoolConfig{
		PoolSize:     2,
		QueueSize:    16,
		SendInterval: 0,
		ExpiryTime:   time.Minute,
	}
}

// syncWorker runs tasks inline so orchestration tests stay deterministic.
type syncWorker struct {
	repo     *storagemock.BroadcastRepoMock
	failAll  bool
	markLost bool // simulate a final status update that never lands
}

func (w *syncWorker) SubmitTask(task BroadcastTaskData) error {
	defer task.wg.Done()
	if w.markLost {
		return nil
	}
	if w.failAll {
		_ = w.repo.MarkBroadcastMessageFailed(task.Ctx, task.Message.ID, "boom")
		return nil
	}
	_ = w.repo.MarkBroadcastMessageSent(task.Ctx, task.Message.ID, 1000+task.Message.ID)
	return nil
}

func (w *syncWorker) Stop() {}

func TestBroadcastCreate_Validation(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	svc := NewBroadcastService(repo, nil, nil, &syncWorker{})

	err := svc.Create(context.Background(), &model.Broadcast{BotID: "bot-1"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	repo.On("CreateBroadcast", mock.Anything, mock.Anything).Return(nil)
	b := &model.Broadcast{BotID: "bot-1", Message: "hello"}
	require.NoError(t, svc.Create(context.Background(), b))
	assert.Equal(t, model.BroadcastStatusDraft, b.Status)

	at := time.Now().Add(time.Hour)
	scheduled := &model.Broadcast{BotID: "bot-1", Message: "hello", ScheduledAt: &at}
	require.NoError(t, svc.Create(context.Background(), scheduled))
	assert.Equal(t, model.BroadcastStatusScheduled, scheduled.Status)
}

func TestBroadcastRun_FanOutMarksEveryRecipient(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	customers := new(storagemock.CustomerRepoMock)
	bots := new(storagemock.BotRepoMock)

	bc := &model.Broadcast{ID: "bc-1", BotID: "bot-1", Message: "hello", Status: model.BroadcastStatusScheduled}
	bots.On("FindBotByID", mock.Anything, "bot-1").Return(&model.Bot{ID: "bot-1", Token: "tok"}, nil)
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").Return(bc, nil)
	customers.On("ListBroadcastRecipients", mock.Anything, "bot-1").Return([]model.Customer{
		{ID: "c1", ChatID: 11},
		{ID: "c2", ChatID: 12},
	}, nil)
	repo.On("StartBroadcast", mock.Anything, "bc-1", 2).Return(nil)
	repo.On("CreateBroadcastMessages", mock.Anything, mock.MatchedBy(func(msgs []model.BroadcastMessage) bool {
		return len(msgs) == 2 && msgs[0].Status == model.BroadcastMsgPending
	})).Return(nil)
	repo.On("ListPendingBroadcastMessages", mock.Anything, "bc-1", broadcastBatchSize).
		Return([]model.BroadcastMessage{{ID: 1, ChatID: 11}, {ID: 2, ChatID: 12}}, nil).Once()
	repo.On("ListPendingBroadcastMessages", mock.Anything, "bc-1", broadcastBatchSize).
		Return([]model.BroadcastMessage(nil), nil).Once()
	repo.On("MarkBroadcastMessagesSending", mock.Anything, []int64{1, 2}).Return(nil)
	repo.On("MarkBroadcastMessageSent", mock.Anything, int64(1), mock.Anything).Return(nil)
	repo.On("MarkBroadcastMessageSent", mock.Anything, int64(2), mock.Anything).Return(nil)
	repo.On("FinishBroadcast", mock.Anything, "bc-1").Return(nil)

	svc := NewBroadcastService(repo, customers, bots, &syncWorker{repo: repo})
	require.NoError(t, svc.Run(context.Background(), "bc-1"))
	repo.AssertExpectations(t)
}

func TestBroadcastRun_ClaimedBatchIsNotResent(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	customers := new(storagemock.CustomerRepoMock)
	bots := new(storagemock.BotRepoMock)

	bc := &model.Broadcast{ID: "bc-1", BotID: "bot-1", Message: "hello", Status: model.BroadcastStatusScheduled}
	bots.On("FindBotByID", mock.Anything, "bot-1").Return(&model.Bot{ID: "bot-1", Token: "tok"}, nil)
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").Return(bc, nil)
	customers.On("ListBroadcastRecipients", mock.Anything, "bot-1").Return([]model.Customer{{ID: "c1", ChatID: 11}}, nil)
	repo.On("StartBroadcast", mock.Anything, "bc-1", 1).Return(nil)
	repo.On("CreateBroadcastMessages", mock.Anything, mock.Anything).Return(nil)
	// The claimed row leaves the pending set even though its final status
	// never lands, so the second pull comes back empty and the run ends.
	repo.On("ListPendingBroadcastMessages", mock.Anything, "bc-1", broadcastBatchSize).
		Return([]model.BroadcastMessage{{ID: 1, ChatID: 11}}, nil).Once()
	repo.On("MarkBroadcastMessagesSending", mock.Anything, []int64{1}).Return(nil).Once()
	repo.On("ListPendingBroadcastMessages", mock.Anything, "bc-1", broadcastBatchSize).
		Return([]model.BroadcastMessage(nil), nil).Once()
	repo.On("FinishBroadcast", mock.Anything, "bc-1").Return(nil)

	svc := NewBroadcastService(repo, customers, bots, &syncWorker{repo: repo, markLost: true})
	require.NoError(t, svc.Run(context.Background(), "bc-1"))
	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "MarkBroadcastMessagesSending", 1)
}

func TestBroadcastRun_AlreadyClaimedIsNoop(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	customers := new(storagemock.CustomerRepoMock)
	bots := new(storagemock.BotRepoMock)

	bc := &model.Broadcast{ID: "bc-1", BotID: "bot-1", Status: model.BroadcastStatusSending}
	bots.On("FindBotByID", mock.Anything, "bot-1").Return(&model.Bot{ID: "bot-1"}, nil)
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").Return(bc, nil)
	customers.On("ListBroadcastRecipients", mock.Anything, "bot-1").Return([]model.Customer{}, nil)
	repo.On("StartBroadcast", mock.Anything, "bc-1", 0).Return(apperrors.ErrNotFound)

	svc := NewBroadcastService(repo, customers, bots, &syncWorker{repo: repo})
	require.NoError(t, svc.Run(context.Background(), "bc-1"))
	repo.AssertNotCalled(t, "FinishBroadcast", mock.Anything, mock.Anything)
}

func TestBroadcastRun_CancelledMidRunStopsFanOut(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	customers := new(storagemock.CustomerRepoMock)
	bots := new(storagemock.BotRepoMock)

	bots.On("FindBotByID", mock.Anything, "bot-1").Return(&model.Bot{ID: "bot-1", Token: "tok"}, nil)
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").
		Return(&model.Broadcast{ID: "bc-1", BotID: "bot-1", Message: "hello", Status: model.BroadcastStatusScheduled}, nil).Once()
	customers.On("ListBroadcastRecipients", mock.Anything, "bot-1").Return([]model.Customer{{ID: "c1", ChatID: 11}}, nil)
	repo.On("StartBroadcast", mock.Anything, "bc-1", 1).Return(nil)
	repo.On("CreateBroadcastMessages", mock.Anything, mock.Anything).Return(nil)
	// The status re-read before the first batch sees the cancellation
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").
		Return(&model.Broadcast{ID: "bc-1", BotID: "bot-1", Status: model.BroadcastStatusCancelled}, nil)

	svc := NewBroadcastService(repo, customers, bots, &syncWorker{repo: repo})
	require.NoError(t, svc.Run(context.Background(), "bc-1"))
	repo.AssertNotCalled(t, "ListPendingBroadcastMessages", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "FinishBroadcast", mock.Anything, mock.Anything)
}

func TestBroadcastDispatchDue_RunsEachDueBroadcast(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	customers := new(storagemock.CustomerRepoMock)
	bots := new(storagemock.BotRepoMock)

	now := time.Now()
	repo.On("ListDueBroadcasts", mock.Anything, now).Return([]model.Broadcast{{ID: "bc-1", BotID: "bot-1"}}, nil)
	bots.On("FindBotByID", mock.Anything, "bot-1").Return(&model.Bot{ID: "bot-1"}, nil)
	repo.On("FindBroadcastByID", mock.Anything, "bc-1").
		Return(&model.Broadcast{ID: "bc-1", BotID: "bot-1", Status: model.BroadcastStatusScheduled}, nil)
	customers.On("ListBroadcastRecipients", mock.Anything, "bot-1").Return([]model.Customer{}, nil)
	repo.On("StartBroadcast", mock.Anything, "bc-1", 0).Return(nil)
	repo.On("ListPendingBroadcastMessages", mock.Anything, "bc-1", broadcastBatchSize).
		Return([]model.BroadcastMessage(nil), nil)
	repo.On("FinishBroadcast", mock.Anything, "bc-1").Return(nil)

	svc := NewBroadcastService(repo, customers, bots, &syncWorker{repo: repo})
	require.NoError(t, svc.DispatchDue(context.Background(), now))
	repo.AssertExpectations(t)
}

func TestBroadcastWorker_DeliversAndRecordsOutcome(t *testing.T) {
	repo := new(storagemock.BroadcastRepoMock)
	platform := new(deliverymock.PlatformClientMock)

	platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(555), nil).Once()
	platform.On("SendMessage", mock.Anything, "tok", mock.Anything).Return(int64(0), errors.New("blocked by user")).Once()
	repo.On("MarkBroadcastMessageSent", mock.Anything, int64(1), int64(555)).Return(nil)
	repo.On("MarkBroadcastMessageFailed", mock.Anything, int64(2), mock.Anything).Return(nil)

	cfg := testBroadcastPoolConfig()
	cfg.PoolSize = 1 // keep delivery order deterministic for the mock choreography
	worker, err := NewBroadcastWorker(cfg, repo, platform, zap.NewNop())
	require.NoError(t, err)
	defer worker.Stop()

	var wg sync.WaitGroup
	bot := &model.Bot{ID: "bot-1", Token: "tok"}
	bc := model.Broadcast{ID: "bc-1", BotID: "bot-1", Message: "hello", ButtonText: "Open", ButtonURL: "https://example.org"}

	for _, id := range []int64{1, 2} {
		wg.Add(1)
		require.NoError(t, worker.SubmitTask(BroadcastTaskData{
			Ctx:       context.Background(),
			Bot:       bot,
			Broadcast: bc,
			Message:   model.BroadcastMessage{ID: id, ChatID: 10 + id},
			wg:        &wg,
		}))
	}
	wg.Wait()

	repo.AssertExpectations(t)
	platform.AssertExpectations(t)
}
