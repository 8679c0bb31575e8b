package broker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/frostpeak/gatewarden/types"
)

// Service wraps a durable AMQP queue carrying resolution notifications from
// the coordinator to the delivery worker.
type Service struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
	queue   amqp.Queue
}

// NewService opens a channel and declares the task queue. Messages that the
// worker can not deliver end up on the dead letter exchange for later
// inspection; undelivered notices expire after a day.
func NewService(conn *amqp.Connection, queueName string) (*Service, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	args := make(amqp.Table)
	args["x-dead-letter-exchange"] = "dead.letter.ex"
	args["x-message-ttl"] = int32(8.64e+7)

	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &Service{
		conn:    conn,
		Channel: ch,
		queue:   q,
	}, nil
}

// Notify publishes a resolution notification for the worker to deliver.
// Implements the coordinator's Notifier; the caller treats failures as
// best-effort.
func (s *Service) Notify(notification types.Notification) error {
	encoded, err := serialize(notification)
	if err != nil {
		return err
	}
	return s.Channel.Publish(
		"",           // exchange
		s.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         encoded,
		})
}

// Consume registers the worker as the queue's consumer with manual acks and
// a prefetch of one.
func (s *Service) Consume() (<-chan amqp.Delivery, error) {
	if err := s.Channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return s.Channel.Consume(
		s.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
}

func serialize(notification types.Notification) ([]byte, error) {
	var b bytes.Buffer
	encoder := json.NewEncoder(&b)
	err := encoder.Encode(notification)
	return b.Bytes(), err
}

// Deserialize decodes a queued notification message body.
func Deserialize(b []byte) (types.Notification, error) {
	var notification types.Notification
	decoder := json.NewDecoder(bytes.NewBuffer(b))
	err := decoder.Decode(&notification)
	return notification, err
}
