package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"assist-server/pkg/ticket"
)

// TicketPublisher delivers synthesized incident records to downstream
// consumers
type TicketPublisher interface {
	PublishTicket(record *ticket.Record) error
	IsConnected() bool
}

// TicketMessage is the wire envelope for a published ticket
type TicketMessage struct {
	TicketID  string                 `json:"ticket_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Record    *ticket.Record         `json:"record"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL        string
	QueueName  string
	RoutingKey string
	Durable    bool
	AutoDelete bool
}

// AMQPClient handles the AMQP connection and ticket publishing
type AMQPClient struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a new AMQP ticket publisher
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true
	config.AutoDelete = false

	return &AMQPClient{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes a connection to the AMQP server
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		c.logger.Warn("AMQP_URL or AMQP_QUEUE_NAME not set, ticket publishing will be disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connChan := make(chan struct {
		conn *amqp.Connection
		err  error
	}, 1)

	go func() {
		conn, err := amqp.Dial(c.config.URL)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
			return
		case connChan <- struct {
			conn *amqp.Connection
			err  error
		}{conn, err}:
		}
	}()

	var conn *amqp.Connection
	var err error
	select {
	case result := <-connChan:
		conn = result.conn
		err = result.err
	case <-ctx.Done():
		return fmt.Errorf("connection to AMQP server timed out after 5 seconds")
	}

	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	c.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	c.channel = channel

	_, err = channel.QueueDeclare(
		c.config.QueueName,
		c.config.Durable,
		c.config.AutoDelete,
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	c.connected = true
	c.logger.WithFields(logrus.Fields{
		"queue": c.config.QueueName,
	}).Info("Connected to AMQP server")

	// Fresh stop channel in case this is a reconnect
	c.stopChan = make(chan struct{})

	go c.monitorConnection()

	return nil
}

// Disconnect closes the AMQP connection
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishTicket publishes a synthesized ticket record to the AMQP queue
func (c *AMQPClient) PublishTicket(record *ticket.Record) error {
	// A broken broker must never take the session pipeline down with it
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("recover", r).Error("Recovered from panic in AMQP PublishTicket")
		}
	}()

	if record == nil {
		return fmt.Errorf("cannot publish nil ticket record")
	}

	if !c.IsConnected() {
		return fmt.Errorf("not connected to AMQP server")
	}

	message := TicketMessage{
		TicketID:  record.ID,
		Timestamp: time.Now(),
		Record:    record,
		Metadata: map[string]interface{}{
			"priority": record.Priority,
			"category": record.Category,
		},
	}

	bodyBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket to JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		if !c.connected || c.channel == nil {
			select {
			case <-ctx.Done():
			case publishChan <- fmt.Errorf("lost AMQP connection before publishing"):
			}
			return
		}

		err := c.channel.Publish(
			"", // Default exchange
			c.config.RoutingKey,
			false, // Mandatory
			false, // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         bodyBytes,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)

		select {
		case <-ctx.Done():
		case publishChan <- err:
		}
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			return fmt.Errorf("failed to publish ticket to AMQP: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("publishing to AMQP timed out after 200ms")
	}

	c.logger.WithField("ticket_id", record.ID).Debug("Successfully published ticket to AMQP")
	return nil
}

func (c *AMQPClient) monitorConnection() {
	closeChan := make(chan *amqp.Error)

	c.connMutex.RLock()
	if c.conn != nil {
		c.conn.NotifyClose(closeChan)
	}
	c.connMutex.RUnlock()

	for {
		select {
		case <-c.stopChan:
			return
		case closeErr := <-closeChan:
			c.connMutex.Lock()
			c.connected = false
			c.connMutex.Unlock()

			c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

			for attempt := 1; attempt <= 10; attempt++ {
				c.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")

				err := c.Connect()
				if err == nil {
					c.logger.Info("Successfully reconnected to AMQP server")
					return
				}

				c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

				backoff := time.Duration(1<<uint(attempt-1)) * time.Second
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				time.Sleep(backoff)
			}
			return
		}
	}
}

// NoopPublisher discards tickets, used when messaging is not configured
type NoopPublisher struct{}

// PublishTicket implements TicketPublisher
func (NoopPublisher) PublishTicket(*ticket.Record) error { return nil }

// IsConnected implements TicketPublisher
func (NoopPublisher) IsConnected() bool { return false }
