package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmTimeout bounds one publish-and-confirm round trip.
const confirmTimeout = 5 * time.Second

// MQPublisher adapts the Client to the FeedPublisher port.
type MQPublisher struct {
	Client *Client
}

func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

// Publish sends body to the exchange under routingKey.
func (publisher *MQPublisher) Publish(exchange, routingKey string, body []byte) error {
	return publisher.Client.PublishMessage(exchange, routingKey, body)
}

// PublishMessage publishes a persistent JSON message and waits for the broker
// confirm. Publishing is mandatory, so an unroutable message comes back on
// the return stream instead of vanishing.
func (client *Client) PublishMessage(exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	// one in-flight publish at a time keeps the confirm stream in lockstep
	// with the publishes
	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	err := ch.PublishWithContext(ctx, exchange, routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
	if err != nil {
		return err
	}

	select {
	case c := <-confirms:
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
		return nil
	case <-ctx.Done():
		// drain the late confirm so the stream stays aligned for the next
		// publish, then report the timeout
		select {
		case c := <-confirms:
			if !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
