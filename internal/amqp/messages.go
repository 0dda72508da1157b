package amqp

import (
	"time"

	"blackout/internal/events"

	"github.com/rabbitmq/amqp091-go"
)

// publishing wraps a ledger event in a persistent AMQP message. The event id
// doubles as the message id so consumers can drop redeliveries.
func publishing(e events.LedgerEvent) (amqp091.Publishing, error) {
	body, err := e.Marshal()
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.EventID,
		Type:         string(e.Type),
		Timestamp:    time.Now(),
		Headers: amqp091.Table{
			"owner_id": e.OwnerID,
		},
		Body: body,
	}, nil
}
