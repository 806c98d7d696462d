package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

var ErrMalformedEvent = errors.New("malformed domain event")

// DecodeEvent parses a broker message. The routing key fills in a missing event type.
func DecodeEvent(msg RabbitMQMessage) (*models.DomainEvent, error) {
	var event models.DomainEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		event.Type = msg.RoutingKey
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: message type not specified", ErrMalformedEvent)
	}
	if event.Timestamp == 0 && !msg.Timestamp.IsZero() {
		event.Timestamp = msg.Timestamp.Unix()
	}
	return &event, nil
}
