package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restobook/internal/events"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventPublisher delivers an event outside the process.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// relayTask is the queued form of an event.
type relayTask struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	LastError string          `json:"last_error,omitempty"`
}

func (t relayTask) event() *events.Event {
	return &events.Event{Type: t.Type, Payload: t.Payload, CreatedAt: t.CreatedAt}
}

// EventRelay moves events from the in-process bus to the broker. Redis keeps the
// backlog across restarts; without it events wait in a bounded memory queue.
type EventRelay struct {
	publisher     EventPublisher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan relayTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewEventRelay(publisher EventPublisher, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *EventRelay {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &EventRelay{
		publisher:     publisher,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan relayTask, 256),
		redisQueueKey: "events:queue",
		deadLetterKey: "events:deadletter",
		pollInterval:  time.Second,
		logger:        logger,
	}
}

// Attach subscribes the relay to every event on the bus.
func (r *EventRelay) Attach(bus *events.EventBus) {
	bus.SubscribeAll(func(e *events.Event) error {
		return r.Enqueue(context.Background(), e)
	})
}

// Enqueue stores the event for delivery. It only fails on bad input.
func (r *EventRelay) Enqueue(ctx context.Context, e *events.Event) error {
	if e == nil || e.Type == "" {
		return errors.New("event type is required")
	}
	task := relayTask{Type: e.Type, Payload: e.Payload, CreatedAt: e.CreatedAt}

	if r.redis != nil {
		if err := r.pushRedis(ctx, r.redisQueueKey, task); err != nil {
			r.logger.Warn().Err(err).Str("event_type", e.Type).Msg("event_relay: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case r.queue <- task:
	default:
		r.logger.Error().Str("event_type", e.Type).Msg("event_relay: memory queue full, event dropped")
	}
	return nil
}

// Start delivers queued events until ctx is done.
func (r *EventRelay) Start(ctx context.Context) {
	r.logger.Info().Msg("event_relay: started")
	defer r.logger.Info().Msg("event_relay: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := r.tryLocalQueue(); ok {
			r.process(ctx, t)
			continue
		}

		if t, ok := r.tryRedis(ctx); ok {
			r.process(ctx, t)
			continue
		}

		if r.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-r.queue:
				r.process(ctx, t)
			case <-time.After(r.pollInterval):
			}
		}
	}
}

func (r *EventRelay) tryLocalQueue() (relayTask, bool) {
	select {
	case t := <-r.queue:
		return t, true
	default:
		return relayTask{}, false
	}
}

func (r *EventRelay) tryRedis(ctx context.Context) (relayTask, bool) {
	if r.redis == nil {
		return relayTask{}, false
	}
	res, err := r.redis.BRPop(ctx, r.pollInterval, r.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return relayTask{}, false
		}
		r.logger.Error().Err(err).Msg("event_relay: redis BRPOP error")
		// не крутимся в цикле при недоступном redis
		select {
		case <-ctx.Done():
		case <-time.After(r.pollInterval):
		}
		return relayTask{}, false
	}
	if len(res) != 2 {
		return relayTask{}, false
	}
	var task relayTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		r.logger.Error().Err(err).Msg("event_relay: decode redis task")
		return relayTask{}, false
	}
	return task, true
}

func (r *EventRelay) process(ctx context.Context, task relayTask) {
	err := r.retryPolicy.Do(ctx, nil, func() error {
		return r.publisher.Publish(ctx, task.event())
	})
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// доставим после перезапуска
		r.requeue(task)
		return
	}

	task.LastError = err.Error()
	r.logger.Error().Err(err).Str("event_type", task.Type).Msg("event_relay: giving up on event")
	r.pushDeadLetter(task)
}

func (r *EventRelay) requeue(task relayTask) {
	if r.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.redis.RPush(ctx, r.redisQueueKey, mustJSON(task)).Err(); err != nil {
		r.logger.Error().Err(err).Str("event_type", task.Type).Msg("event_relay: requeue failed")
	}
}

func (r *EventRelay) pushRedis(ctx context.Context, key string, task relayTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return r.redis.LPush(ctx, key, data).Err()
}

func (r *EventRelay) pushDeadLetter(task relayTask) {
	if r.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.pushRedis(ctx, r.deadLetterKey, task); err != nil {
		r.logger.Error().Err(err).Str("event_type", task.Type).Msg("event_relay: deadletter push failed")
	}
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
