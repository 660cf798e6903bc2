package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/config"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/privacy"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
)

// Signature headers attached to every outbound delivery.
const (
	HeaderTimestamp = "X-Bot-Timestamp"
	HeaderSignature = "X-Bot-Signature"
)

const maxResponseLog = 1024

// WebhookSender delivers signed JSON payloads to integration endpoints.
type WebhookSender interface {
	Send(ctx context.Context, botID string, whCfg model.WebhookConfig, payload []byte) error
}

// Sender is the production WebhookSender: SSRF-guarded, signing, retrying
// with doubling delays, and auditing every attempt to the webhook log.
type Sender struct {
	client *http.Client
	guard  DestinationGuard
	cfg    config.WebhookClientConfig
	logs   storage.WebhookLogRepo

	sleep func(time.Duration) // injectable for tests
	now   func() time.Time
}

// NewSender builds a delivery client. Redirects are refused: a redirect
// response could send the signed payload to a destination the guard never saw.
func NewSender(cfg config.WebhookClientConfig, guard DestinationGuard, logs storage.WebhookLogRepo) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		guard: guard,
		cfg:   cfg,
		logs:  logs,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send delivers payload to the endpoint described by whCfg. Transport errors
// and 5xx responses are retried with doubling delays up to the configured
// cap; 4xx responses and SSRF rejections stop immediately.
func (s *Sender) Send(ctx context.Context, botID string, whCfg model.WebhookConfig, payload []byte) error {
	if !whCfg.Enabled {
		return nil
	}

	method := whCfg.Method
	if method == "" {
		method = http.MethodPost
	}

	maxRetries := s.cfg.MaxRetries
	if whCfg.RetryCount > 0 {
		maxRetries = whCfg.RetryCount
	}

	delay := s.cfg.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			s.sleep(delay)
			delay *= 2
			if s.cfg.MaxDelay > 0 && delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", apperrors.ErrDeliveryFailed, ctx.Err())
			}
		}

		outcome, retryable, err := s.attempt(ctx, botID, method, whCfg, payload, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		observer.IncWebhookAttempt(botID, outcome)
		if !retryable {
			return err
		}
	}

	return fmt.Errorf("%w: retries exhausted: %w", apperrors.ErrDeliveryFailed, lastErr)
}

// attempt performs one delivery try and audits it. It reports the metric
// outcome and whether the failure is worth another attempt.
func (s *Sender) attempt(ctx context.Context, botID, method string, whCfg model.WebhookConfig, payload []byte, attempt int) (outcome string, retryable bool, err error) {
	log := logger.FromContext(ctx).With(
		zap.String("bot_id", botID),
		zap.String("url", whCfg.URL),
		zap.Int("attempt", attempt),
	)

	entry := model.WebhookLog{
		BotID:   botID,
		URL:     whCfg.URL,
		Method:  method,
		Payload: logPayload(payload, s.cfg.MaxBodyLog),
		Attempt: attempt,
	}

	// Re-validated on every attempt; never cached
	if guardErr := s.guard.Validate(ctx, whCfg.URL); guardErr != nil {
		entry.Error = guardErr.Error()
		s.audit(ctx, entry)
		log.Warn("Webhook destination rejected", zap.Error(guardErr))
		return "ssrf_rejected", false, guardErr
	}

	timeout := whCfg.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// GET deliveries are bare notifications; the payload travels only on
	// body-carrying methods.
	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader(payload)
	}
	req, reqErr := http.NewRequestWithContext(attemptCtx, method, whCfg.URL, body)
	if reqErr != nil {
		entry.Error = reqErr.Error()
		s.audit(ctx, entry)
		return "transport_error", false, fmt.Errorf("%w: failed to build request: %w", apperrors.ErrDeliveryFailed, reqErr)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range whCfg.Headers {
		req.Header.Set(k, v)
	}
	if whCfg.SigningSecret != "" {
		ts := strconv.FormatInt(s.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(whCfg.SigningSecret, ts, payload))
	}

	startTime := s.now()
	resp, doErr := s.client.Do(req)
	duration := s.now().Sub(startTime)

	if doErr != nil {
		entry.Error = doErr.Error()
		s.audit(ctx, entry)
		observer.ObserveWebhookAttemptDuration(botID, "transport_error", duration)
		log.Warn("Webhook transport error", zap.Error(doErr))
		return "transport_error", true, fmt.Errorf("%w: %w", apperrors.ErrDeliveryFailed, doErr)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLog))
	entry.StatusCode = resp.StatusCode
	entry.Response = privacy.MaskAndTruncate(string(respBody), maxResponseLog)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.audit(ctx, entry)
		observer.IncWebhookAttempt(botID, "success")
		observer.ObserveWebhookAttemptDuration(botID, "success", duration)
		log.Debug("Webhook delivered", zap.Int("status", resp.StatusCode))
		return "success", false, nil

	case resp.StatusCode >= 500:
		entry.Error = fmt.Sprintf("server error: %d", resp.StatusCode)
		s.audit(ctx, entry)
		observer.ObserveWebhookAttemptDuration(botID, "server_error", duration)
		log.Warn("Webhook server error", zap.Int("status", resp.StatusCode))
		return "server_error", true, fmt.Errorf("%w: status %d", apperrors.ErrDeliveryFailed, resp.StatusCode)

	default:
		// 3xx and 4xx mean the endpoint understood us and said no
		entry.Error = fmt.Sprintf("client error: %d", resp.StatusCode)
		s.audit(ctx, entry)
		observer.ObserveWebhookAttemptDuration(botID, "client_error", duration)
		log.Warn("Webhook rejected by endpoint", zap.Int("status", resp.StatusCode))
		return "client_error", false, fmt.Errorf("%w: status %d", apperrors.ErrDeliveryFailed, resp.StatusCode)
	}
}

// audit writes one attempt row, best-effort. Delivery never fails because the
// audit trail could not be written.
func (s *Sender) audit(ctx context.Context, entry model.WebhookLog) {
	if s.logs == nil {
		return
	}
	if err := s.logs.SaveWebhookLog(context.WithoutCancel(ctx), entry); err != nil {
		logger.FromContext(ctx).Warn("Failed to persist webhook log", zap.Error(err))
	}
}

// logPayload masks PII in the payload and caps its stored size while keeping
// the column valid JSON. Oversized payloads are stored as a quoted prefix.
func logPayload(payload []byte, maxLen int) datatypes.JSON {
	masked := privacy.MaskText(string(payload))
	if maxLen <= 0 || len(masked) <= maxLen {
		return datatypes.JSON(masked)
	}
	truncated := privacy.MaskAndTruncate(string(payload), maxLen)
	return datatypes.JSON(strconv.Quote(truncated))
}
