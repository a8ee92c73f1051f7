package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"kvision-go/internal/models"
	"kvision-go/internal/storage"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ActivityEvent is the wire format for audit events published to the activity topic.
type ActivityEvent struct {
	Action      string              `json:"action"`
	PerformedBy string              `json:"performedBy"`
	Type        models.ActivityType `json:"type"`
}

// ActivityConsumerHandler consumes activity events and persists them as audit log rows.
type ActivityConsumerHandler struct {
	activityRepo storage.ActivityRepository
}

// NewActivityConsumerHandler creates a handler backed by the given repository.
func NewActivityConsumerHandler(repo storage.ActivityRepository) *ActivityConsumerHandler {
	return &ActivityConsumerHandler{activityRepo: repo}
}

// HandleMessage decodes a single Kafka message and writes the audit entry.
// Malformed payloads are logged and dropped so the consumer can make progress.
func (h *ActivityConsumerHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var event ActivityEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("ActivityConsumerHandler: dropping malformed event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}

	if event.Action == "" || !event.Type.Valid() {
		log.Printf("ActivityConsumerHandler: dropping incomplete event at offset %v: %+v", msg.TopicPartition.Offset, event)
		return nil
	}

	entry := &models.ActivityLog{
		Action:      event.Action,
		PerformedBy: event.PerformedBy,
		Type:        event.Type,
	}
	if err := h.activityRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist activity event: %w", err)
	}
	return nil
}
