package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reqflow/internal/notifications"
	"reqflow/internal/store"
)

// NewMessage builds an outbox row for event about requestID.
func NewMessage(event notifications.Event, requestID int64, payload notifications.Payload, now time.Time) (*store.OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	return &store.OutboxMessage{
		ID:            uuid.NewString(),
		Kind:          string(event),
		RequestID:     requestID,
		Payload:       data,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

func decodePayload(msg *store.OutboxMessage) (notifications.Payload, error) {
	var payload notifications.Payload
	if len(msg.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode outbox payload %s: %w", msg.ID, err)
	}
	return payload, nil
}
