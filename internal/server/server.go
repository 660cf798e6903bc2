package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/internal/usecase"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// HeaderSecretToken carries the per-bot inbound webhook secret set when the
// webhook was registered with the platform.
const HeaderSecretToken = "X-Bot-Api-Secret-Token"

// Updates larger than this are junk, not platform traffic.
const maxUpdateBody = 1 << 20

// Pinger reports storage backend health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the inbound HTTP surface: the platform webhook route, a small
// management API and the health endpoints.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	bots         storage.BotRepo
	webhookLogs  storage.WebhookLogRepo
	conversation *usecase.ConversationService
	broadcasts   *usecase.BroadcastService
	pinger       Pinger
	logger       *zap.Logger
}

// New builds the HTTP server and wires all routes.
func New(
	port int,
	bots storage.BotRepo,
	webhookLogs storage.WebhookLogRepo,
	conversation *usecase.ConversationService,
	broadcasts *usecase.BroadcastService,
	pinger Pinger,
	baseLogger *zap.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		bots:         bots,
		webhookLogs:  webhookLogs,
		conversation: conversation,
		broadcasts:   broadcasts,
		pinger:       pinger,
		logger:       baseLogger.Named("http"),
	}

	s.router.Use(s.requestIDMiddleware)
	s.router.HandleFunc("/webhook/{botID}", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/broadcasts", s.handleCreateBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/broadcasts/{id}", s.handleBroadcastStatus).Methods(http.MethodGet)
	api.HandleFunc("/broadcasts/{id}/cancel", s.handleCancelBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/bots/{botID}/webhook-logs", s.handleListWebhookLogs).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler() {
	s.logger.Info("Registering /metrics endpoint")
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	utils.SafeGo(func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware stamps every request with an ID carried through the
// context logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		ctx = logger.WithLogger(ctx, s.logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleWebhook receives platform updates. Responses follow the
// ack-to-avoid-redelivery rule: once the request is authenticated and
// decodable, the platform always gets a 200, even when downstream processing
// failed. The platform would otherwise redeliver, and the dedup gate already
// makes redelivery useless.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := mux.Vars(r)["botID"]
	log := logger.FromContext(ctx).With(zap.String("bot_id", botID))

	bot, err := s.bots.FindBotByID(ctx, botID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Unknown bot: same response as a bad secret, so the route does
			// not leak which bot IDs exist.
			utils.WriteJSONResponse(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		log.Error("Bot lookup failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	secret := r.Header.Get(HeaderSecretToken)
	if !secretMatches(bot.WebhookSecret, secret) {
		log.Warn("Webhook secret mismatch")
		utils.WriteJSONResponse(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}
	if !bot.Enabled {
		// Acknowledged but dropped; a disabled bot should not accumulate
		// redeliveries on the platform side.
		utils.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBody))
	if err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody("unreadable body"))
		return
	}
	var upd model.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		log.Warn("Undecodable update envelope", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody("bad request"))
		return
	}

	if err := s.conversation.HandleUpdate(ctx, bot, &upd); err != nil {
		log.Error("Update processing failed", zap.Int64("update_id", upd.UpdateID), zap.Error(err))
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// secretMatches compares secrets in constant time. A bot with no secret
// configured accepts nothing; registration always sets one.
func secretMatches(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var b model.Broadcast
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBody)).Decode(&b); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody("bad request"))
		return
	}
	b.ID = uuid.NewString()

	if err := s.broadcasts.Create(ctx, &b); err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		logger.FromContext(ctx).Error("Broadcast create failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, b)
}

func (s *Server) handleBroadcastStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	b, err := s.broadcasts.Status(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			utils.WriteJSONResponse(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		logger.FromContext(ctx).Error("Broadcast lookup failed", zap.String("broadcast_id", id), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, b)
}

func (s *Server) handleCancelBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := s.broadcasts.Cancel(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			utils.WriteJSONResponse(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		logger.FromContext(ctx).Error("Broadcast cancel failed", zap.String("broadcast_id", id), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListWebhookLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := mux.Vars(r)["botID"]

	logs, err := s.webhookLogs.FindWebhookLogsByBotID(ctx, botID, 0)
	if err != nil {
		logger.FromContext(ctx).Error("Webhook log listing failed", zap.String("bot_id", botID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, logs)
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{Status: "UP"})
}

// handleReady handles the /ready endpoint for readiness probes. Readiness
// requires a live database.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "NOT_READY",
			Details: map[string]string{"database": err.Error()},
		})
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
