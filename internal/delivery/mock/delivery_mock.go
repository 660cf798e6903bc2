package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/BogdanMod/lego-bot-sub001/internal/delivery"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
)

// WebhookSenderMock mocks the WebhookSender interface
type WebhookSenderMock struct {
	mock.Mock
}

// Ensure WebhookSenderMock implements delivery.WebhookSender
var _ delivery.WebhookSender = (*WebhookSenderMock)(nil)

// Send mocks the Send method
func (m *WebhookSenderMock) Send(ctx context.Context, botID string, whCfg model.WebhookConfig, payload []byte) error {
	args := m.Called(ctx, botID, whCfg, payload)
	return args.Error(0)
}

// PlatformClientMock mocks the PlatformClient interface
type PlatformClientMock struct {
	mock.Mock
}

// Ensure PlatformClientMock implements delivery.PlatformClient
var _ delivery.PlatformClient = (*PlatformClientMock)(nil)

// SendMessage mocks the SendMessage method
func (m *PlatformClientMock) SendMessage(ctx context.Context, token string, params delivery.SendMessageParams) (int64, error) {
	args := m.Called(ctx, token, params)
	return args.Get(0).(int64), args.Error(1)
}

// SendPhoto mocks the SendPhoto method
func (m *PlatformClientMock) SendPhoto(ctx context.Context, token string, params delivery.SendPhotoParams) (int64, error) {
	args := m.Called(ctx, token, params)
	return args.Get(0).(int64), args.Error(1)
}

// SendMediaGroup mocks the SendMediaGroup method
func (m *PlatformClientMock) SendMediaGroup(ctx context.Context, token string, params delivery.SendMediaGroupParams) ([]int64, error) {
	args := m.Called(ctx, token, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// AnswerCallbackQuery mocks the AnswerCallbackQuery method
func (m *PlatformClientMock) AnswerCallbackQuery(ctx context.Context, token, callbackQueryID string) error {
	args := m.Called(ctx, token, callbackQueryID)
	return args.Error(0)
}
