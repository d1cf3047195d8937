package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"restobook/internal/config"
	"restobook/internal/metrics"
	"restobook/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Client sends requests to the scheduler and waits for the matching reply.
type Client struct {
	ch         Channel
	cfg        config.BrokerConfig
	replyQueue string
	logger     *zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan *models.BookingResponse
	closed  bool
}

// NewClient declares a private reply queue and starts dispatching replies.
func NewClient(ch Channel, cfg config.BrokerConfig, logger *zerolog.Logger) (*Client, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = models.DefaultReplyTimeout
	}

	// временная очередь ответов
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare reply queue: %w", err)
	}
	replies, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register reply consumer: %w", err)
	}

	c := &Client{
		ch:         ch,
		cfg:        cfg,
		replyQueue: q.Name,
		logger:     logger,
		pending:    make(map[string]chan *models.BookingResponse),
	}
	go c.dispatch(replies)
	return c, nil
}

// RequestBooking assigns a correlation id when the caller did not.
func (c *Client) RequestBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResponse, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	return c.call(ctx, c.cfg.RequestQueue, commandFind, req)
}

func (c *Client) ConfirmSlot(ctx context.Context, conf *models.SlotConfirmation) (*models.BookingResponse, error) {
	return c.call(ctx, c.cfg.ConfirmQueue, commandConfirm, conf)
}

func (c *Client) call(ctx context.Context, queue, command string, payload any) (*models.BookingResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", command, err)
	}

	// each message gets its own id so client retries with one booking correlation id never collide
	msgID := uuid.NewString()
	wait := make(chan *models.BookingResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("broker client closed")
	}
	c.pending[msgID] = wait
	c.mu.Unlock()
	defer c.forget(msgID)

	err = c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   contentTypeJSON,
		ReplyTo:       c.replyQueue,
		CorrelationId: msgID,
		Timestamp:     time.Now(),
		DeliveryMode:  amqp.Persistent,
		Body:          body,
	})
	if err != nil {
		metrics.IncBroker(command, "publish_error")
		return nil, fmt.Errorf("failed to publish %s: %w", command, err)
	}

	timer := time.NewTimer(c.cfg.ReplyTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-wait:
		if !ok {
			return nil, fmt.Errorf("broker client closed")
		}
		return resp, nil
	case <-timer.C:
		metrics.IncBroker(command, "timeout")
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(msgID string) {
	c.mu.Lock()
	delete(c.pending, msgID)
	c.mu.Unlock()
}

func (c *Client) dispatch(replies <-chan amqp.Delivery) {
	for d := range replies {
		c.mu.Lock()
		wait, ok := c.pending[d.CorrelationId]
		c.mu.Unlock()
		if !ok {
			// ответ пришел после таймаута
			c.logger.Debug().Str("correlation_id", d.CorrelationId).Msg("reply without waiter dropped")
			continue
		}

		var resp models.BookingResponse
		if err := json.Unmarshal(d.Body, &resp); err != nil {
			c.logger.Error().Err(err).Str("correlation_id", d.CorrelationId).Msg("failed to unmarshal reply")
			continue
		}
		select {
		case wait <- &resp:
		default:
		}
	}

	c.mu.Lock()
	c.closed = true
	for id, wait := range c.pending {
		close(wait)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	c.logger.Warn().Msg("reply channel closed")
}
