package broker

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

// fakeChannel keeps declared queues as Go channels.
type fakeChannel struct {
	mu         sync.Mutex
	queues     map[string]chan amqp.Delivery
	exchanges  []string
	published  []published
	prefetch   int
	onPublish  func(p published)
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{queues: make(map[string]chan amqp.Delivery)}
}

func (f *fakeChannel) queue(name string) chan amqp.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 16)
		f.queues[name] = q
	}
	return q
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if name == "" {
		name = "amq.gen-reply"
	}
	f.queue(name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	return f.queue(queue), nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	if f.publishErr != nil {
		f.mu.Unlock()
		return f.publishErr
	}
	p := published{exchange: exchange, key: key, msg: msg}
	f.published = append(f.published, p)
	hook := f.onPublish
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) publishes() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeAck struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAck) Nack(uint64, bool, bool) error { return nil }

func (a *fakeAck) Reject(uint64, bool) error { return nil }

func (a *fakeAck) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked)
}
