package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/BogdanMod/lego-bot-sub001/internal/jetstream"
	"github.com/BogdanMod/lego-bot-sub001/internal/model"
	"github.com/BogdanMod/lego-bot-sub001/internal/observer"
	"github.com/BogdanMod/lego-bot-sub001/internal/privacy"
	"github.com/BogdanMod/lego-bot-sub001/internal/storage"
	"github.com/BogdanMod/lego-bot-sub001/pkg/logger"
	"github.com/BogdanMod/lego-bot-sub001/pkg/utils"
)

// IngestInput describes one interaction handed to the ingestion pipeline
// after the conversation layer has resolved it.
type IngestInput struct {
	Bot      *model.Bot
	SourceID string
	Customer model.Customer // Profile snapshot extracted from the update
	StateKey string
	State    *model.State // Outgoing state reached by this interaction, nil if unresolved
	Text     string       // User free text, empty for pure button clicks
	// ContactShared marks an update that arrived through a request_contact
	// button; absent an explicit track_event hint it classifies as a lead.
	ContactShared bool
}

// IngestResult reports what the pipeline recorded.
type IngestResult struct {
	DedupSkip  bool
	Kind       model.EventKind
	EntityType string
	EntityID   string
	EventID    int64
	Suppressed bool
	Customer   *model.Customer
}

// IngestService runs the event ingestion pipeline: dedup claim, customer
// upsert, classification, transactional entity+event write, then best-effort
// stream publish and admin notification.
type IngestService struct {
	events      storage.EventRepo
	customers   storage.CustomerRepo
	classifier  Classifier
	js          jetstream.ClientInterface
	notifier    Notifier
	dedupWindow time.Duration
	subjectBase string
}

// NewIngestService creates the ingestion pipeline. js and notifier may be nil
// when streaming or notification is disabled.
func NewIngestService(
	events storage.EventRepo,
	customers storage.CustomerRepo,
	classifier Classifier,
	js jetstream.ClientInterface,
	notifier Notifier,
	dedupWindow time.Duration,
) *IngestService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &IngestService{
		events:      events,
		customers:   customers,
		classifier:  classifier,
		js:          js,
		notifier:    notifier,
		dedupWindow: dedupWindow,
		subjectBase: "v1.bots.events",
	}
}

// Ingest processes one interaction. The write path up to the transaction
// commit is authoritative; stream publish and notification afterwards are
// best effort and never fail the call.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	log := logger.FromContext(ctx).With(
		zap.String("bot_id", in.Bot.ID),
		zap.String("source_id", in.SourceID),
	)

	claimed, err := s.events.InsertEventDedup(ctx, in.Bot.ID, in.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim source event: %w", err)
	}
	if !claimed {
		log.Debug("Duplicate source event, skipping ingestion")
		observer.IncIngestResult(in.Bot.ID, "", "dedup_skip")
		return &IngestResult{DedupSkip: true}, nil
	}

	customer, err := s.customers.UpsertCustomer(ctx, in.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	kind, source := s.classify(in)
	payload := ingestPayload(in)

	res, err := s.events.CreateEntityWithEvent(ctx, storage.EntityCreation{
		Kind:        kind,
		BotID:       in.Bot.ID,
		CustomerID:  customer.ID,
		Source:      source,
		Payload:     payload,
		DedupWindow: s.dedupWindow,
	})
	if err != nil {
		observer.IncIngestResult(in.Bot.ID, string(kind), "error")
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}

	out := &IngestResult{
		Kind:       kind,
		EntityType: res.EntityType,
		EntityID:   res.EntityID,
		EventID:    res.EventID,
		Suppressed: res.Suppressed,
		Customer:   customer,
	}

	switch {
	case res.Suppressed:
		observer.IncIngestResult(in.Bot.ID, string(kind), "suppressed")
		log.Debug("Entity suppressed by re-occurrence window", zap.String("kind", string(kind)))
	case res.EntityID != "":
		observer.IncIngestResult(in.Bot.ID, string(kind), "created")
		log.Info("Entity captured",
			zap.String("entity_type", res.EntityType),
			zap.String("entity_id", res.EntityID),
		)
	default:
		observer.IncIngestResult(in.Bot.ID, model.EventTypeInteraction, "recorded")
	}

	s.publishStreamEvent(ctx, in.Bot.ID, out, payload)

	if out.EntityID != "" && notifiableEntity(out.EntityType) {
		bot, cust := in.Bot, customer
		entityType, entityID := out.EntityType, out.EntityID
		// Detached from the request so a slow link service cannot hold the
		// update handler.
		notifyCtx := logger.WithLogger(context.WithoutCancel(ctx), log)
		utils.SafeGo(func() {
			s.notifier.NotifyEntity(notifyCtx, bot, entityType, entityID, cust)
		}, nil)
	}

	return out, nil
}

// notifiableEntity reports whether a captured entity type pages the bot
// owner. Orders stay silent; they are tracked, not escalated.
func notifiableEntity(entityType string) bool {
	kind := model.EventKind(entityType)
	return kind == model.KindLead || kind == model.KindAppointment
}

// classify resolves the entity kind for one interaction. An explicit
// track_event on the state wins; after that a contact share is a lead and
// everything else goes through the classifier.
func (s *IngestService) classify(in IngestInput) (model.EventKind, string) {
	if in.State != nil {
		if kind := model.ParseEventKind(in.State.TrackEvent); kind != model.KindNone {
			return kind, in.StateKey
		}
	}
	if in.ContactShared {
		return model.KindLead, "request_contact"
	}
	kind := s.classifier.Classify(in.State, in.Text)
	if kind == model.KindNone {
		return kind, ""
	}
	return kind, in.StateKey
}

// publishStreamEvent pushes the committed event onto the stream. Failures are
// logged and swallowed; the database row is the source of truth.
func (s *IngestService) publishStreamEvent(ctx context.Context, botID string, res *IngestResult, payload datatypes.JSON) {
	if s.js == nil {
		return
	}

	eventType := res.EntityType
	if eventType == "" {
		eventType = model.EventTypeInteraction
	}

	event := model.StreamEvent{
		BotID:      botID,
		EventID:    res.EventID,
		Type:       eventType,
		EntityType: res.EntityType,
		EntityID:   res.EntityID,
		CreatedAt:  utils.Now(),
		Payload:    payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to marshal stream event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", s.subjectBase, botID)
	if err := s.js.Publish(subject, data, nil); err != nil {
		observer.IncStreamPublish(eventType, "error")
		logger.FromContext(ctx).Warn("Failed to publish stream event",
			zap.String("subject", subject),
			zap.Int64("event_id", res.EventID),
			zap.Error(err),
		)
		return
	}
	observer.IncStreamPublish(eventType, "success")
}

// ingestPayload builds the jsonb audit payload. Free text is masked before it
// is persisted anywhere outside the customer profile.
func ingestPayload(in IngestInput) datatypes.JSON {
	payload := map[string]interface{}{
		"state_key": in.StateKey,
	}
	if in.Text != "" {
		payload["text"] = privacy.MaskText(in.Text)
	}
	if in.ContactShared {
		payload["contact_shared"] = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
