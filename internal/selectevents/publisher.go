// Package selectevents publishes selection changes to Kafka for downstream
// consumers such as an info panel or an audit log.
package selectevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/selection"
)

// Publisher is an asynchronous selection.Sink. Publish never blocks the frame
// thread: when the queue is full the event is dropped.
type Publisher struct {
	topic   string
	events  chan selection.Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	dropped atomic.Int64
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("selectevents: create async producer: %w", err)
	}
	p := newPublisher(prod, topic, queueSize, log)
	p.start()
	return p, nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if topic == "" {
		topic = "selection-events"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		topic:   topic,
		events:  make(chan selection.Event, queueSize),
		prod:    prod,
		log:     log,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}
}

func (p *Publisher) start() {
	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("selectevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.ObjectID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncSelectionPublish("error")
				p.log.Warn("selectevents: producer error", "err", err)
			}
		}
	}()
}

func (p *Publisher) Publish(ev selection.Event) {
	select {
	case p.events <- ev:
		observability.IncSelectionPublish("queued")
	default:
		p.dropped.Add(1)
		observability.IncSelectionPublish("dropped")
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errDone
	if err != nil {
		return fmt.Errorf("selectevents: close producer: %w", err)
	}
	return nil
}
