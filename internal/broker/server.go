package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"restobook/internal/config"
	"restobook/internal/domain"
	"restobook/internal/metrics"
	"restobook/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	commandFind    = "find_booking"
	commandConfirm = "confirm_slot"
)

// Server consumes booking requests and confirmations and answers on ReplyTo.
type Server struct {
	ch      Channel
	service domain.BookingService
	cfg     config.BrokerConfig
	logger  *zerolog.Logger

	handleTimeout time.Duration
}

func NewServer(ch Channel, service domain.BookingService, cfg config.BrokerConfig, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		ch:            ch,
		service:       service,
		cfg:           cfg,
		logger:        logger,
		handleTimeout: cfg.ReplyTimeout,
	}
}

// Start consumes until ctx is done or the broker closes the deliveries.
// In-flight messages are finished before it returns.
func (s *Server) Start(ctx context.Context) error {
	prefetch := s.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := s.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	queues := map[string]string{
		s.cfg.RequestQueue: commandFind,
		s.cfg.ConfirmQueue: commandConfirm,
	}

	var wg sync.WaitGroup
	// запросы разных дней обрабатываются параллельно, не больше prefetch одновременно
	sem := make(chan struct{}, prefetch)

	for queue, command := range queues {
		if err := declareWorkQueue(s.ch, queue); err != nil {
			return err
		}
		deliveries, err := s.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to register consumer on %s: %w", queue, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consume(ctx, deliveries, command, sem, &wg)
		}()
		s.logger.Info().Str("queue", queue).Str("command", command).Msg("broker server listening")
	}

	wg.Wait()
	return nil
}

func (s *Server) consume(ctx context.Context, deliveries <-chan amqp.Delivery, command string, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				s.logger.Warn().Str("command", command).Msg("delivery channel closed")
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				s.handle(ctx, d, command)
			}()
		}
	}
}

func (s *Server) handle(parent context.Context, d amqp.Delivery, command string) {
	defer func() {
		// ответ уже отправлен или невозможен, повторная доставка не нужна
		if err := d.Ack(false); err != nil {
			s.logger.Error().Err(err).Str("command", command).Msg("failed to ack message")
		}
	}()

	ctx := context.WithoutCancel(parent)
	if s.handleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.handleTimeout)
		defer cancel()
	}

	resp := s.dispatch(ctx, d, command)
	metrics.IncBroker(command, string(resp.Type))
	s.reply(ctx, d, resp)
}

func (s *Server) dispatch(ctx context.Context, d amqp.Delivery, command string) (resp *models.BookingResponse) {
	defer func() {
		if r := recover(); r != nil {
			var ids struct {
				CorrelationID string `json:"correlation_id"`
				RequestID     int64  `json:"request_id"`
			}
			_ = json.Unmarshal(d.Body, &ids)
			s.logger.Error().
				Interface("panic", r).
				Str("command", command).
				Str("correlation_id", ids.CorrelationID).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in message handler")
			resp = models.NewErrorResponse(ids.CorrelationID, ids.RequestID, models.CodeInternal, "internal error")
		}
	}()

	switch command {
	case commandFind:
		var req models.BookingRequest
		if err := json.Unmarshal(d.Body, &req); err != nil {
			return models.NewErrorResponse("", 0, models.CodeInvalidRequest, "invalid request body: "+err.Error())
		}
		return s.service.FindBooking(ctx, &req)
	case commandConfirm:
		var conf models.SlotConfirmation
		if err := json.Unmarshal(d.Body, &conf); err != nil {
			return models.NewErrorResponse("", 0, models.CodeInvalidRequest, "invalid confirmation body: "+err.Error())
		}
		return s.service.Confirm(ctx, &conf)
	default:
		return models.NewErrorResponse("", 0, models.CodeInvalidRequest, "unknown command "+command)
	}
}

func (s *Server) reply(ctx context.Context, d amqp.Delivery, resp *models.BookingResponse) {
	if d.ReplyTo == "" {
		// fire-and-forget
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	err = s.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   contentTypeJSON,
		CorrelationId: d.CorrelationId,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("reply_to", d.ReplyTo).Str("correlation_id", d.CorrelationId).Msg("failed to publish response")
	}
}
