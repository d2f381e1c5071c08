package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mech-dispatch/internal/general/config"
	"mech-dispatch/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxReconnectBackoff = 30 * time.Second

// Client owns one AMQP connection shared by all publishers and consumers of
// a service mode. It declares the topology on connect, keeps a dedicated
// confirming publish channel, and reconnects with backoff when the broker
// drops the connection.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // detached from the caller so reconnect logging survives shutdown ordering

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closed    chan struct{}
	reconnect chan struct{}
}

// ConnectRabbitMQ dials the broker once and starts the reconnect watcher.
// A failed first dial is returned to the caller; only later drops are
// retried in the background.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	client := &Client{
		url: fmt.Sprintf("amqp://%s:%s@%s:%d/",
			cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port),
		logger:    logger,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := client.connectOnce(); err != nil {
		return nil, err
	}

	go client.watch()

	return client, nil
}

// Close stops the watcher and tears down the AMQP resources. Safe to call
// more than once.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	client.pubMu.Lock()
	if client.pubConfirms != nil {
		close(client.pubConfirms)
		client.pubConfirms = nil
	}
	client.pubMu.Unlock()
}

// connectOnce dials, declares the topology, and installs a fresh confirming
// publish channel. On any failure the partly built resources are released.
func (client *Client) connectOnce() error {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	defer func() {
		if err != nil && conn != nil {
			_ = conn.Close()
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}

	defer func() {
		if err != nil && ch != nil {
			_ = ch.Close()
		}
	}()

	if err = declareTopology(ch); err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare RabbitMQ topology", err, nil)
		return fmt.Errorf("rabbitmq: failed to declare topology: %w", err)
	}

	if err = ch.Confirm(false); err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("rabbitmq: failed to enable confirms: %w", err)
	}

	client.swapConfirms(ch)
	client.logReturns(ch)

	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()

	go client.requestReconnectOnClose(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established successfully", nil)
	return nil
}

// swapConfirms installs the new channel's confirm stream and closes the old
// one so a publisher blocked on it unblocks.
func (client *Client) swapConfirms(ch *amqp.Channel) {
	client.pubMu.Lock()
	old := client.pubConfirms
	client.pubConfirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	client.pubMu.Unlock()

	if old != nil {
		close(old)
	}
}

// logReturns drains mandatory-publish returns; an unroutable message is a
// topology bug worth a loud log line.
func (client *Client) logReturns(ch *amqp.Channel) {
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))
	go func() {
		for r := range returns {
			client.logger.Error(client.logCtx, "rabbitmq_returned",
				"Message was returned (unroutable)",
				fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
				map[string]any{
					"exchange":   r.Exchange,
					"routingKey": r.RoutingKey,
					"size":       len(r.Body),
				},
			)
		}
		client.logger.Info(client.logCtx, "rabbitmq_return_stream_closed",
			"NotifyReturn channel closed; likely due to channel shutdown/reconnect", nil)
	}()
}

// requestReconnectOnClose waits for the connection or channel to die and
// pokes the watcher. The reconnect channel holds at most one pending poke.
func (client *Client) requestReconnectOnClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-client.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

// watch redials with exponential backoff until Close.
func (client *Client) watch() {
	backoff := time.Second
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			for {
				select {
				case <-client.closed:
					return
				default:
				}

				if err := client.connectOnce(); err == nil {
					backoff = time.Second
					client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology", nil)
					break
				} else {
					client.logger.Error(client.logCtx, "retry_attempted", "Failed to reconnect to RabbitMQ", err, nil)
				}

				time.Sleep(backoff)
				if backoff < maxReconnectBackoff {
					backoff *= 2
					if backoff > maxReconnectBackoff {
						backoff = maxReconnectBackoff
					}
				}
			}
		}
	}
}
