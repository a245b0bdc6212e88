package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Publisher pushes change events for locally submitted field reports onto the
// same topic the consumer reads, so every replica reloads the affected
// category. Publishing is fire-and-forget off the request path.
type Publisher struct {
	log     *slog.Logger
	topic   string
	events  chan ChangeEvent
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

func NewPublisher(logger *slog.Logger, brokers, topic string, queueSize int) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(splitBrokers(brokers), cfg)
	if err != nil {
		return nil, fmt.Errorf("realtime: create async producer: %w", err)
	}

	p := &Publisher{
		log:     logger,
		topic:   topic,
		events:  make(chan ChangeEvent, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("realtime publish marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Error("realtime producer error", "err", err)
			}
		}
	}()

	return p, nil
}

// Publish enqueues an event. A full queue drops the event rather than block
// the request path.
func (p *Publisher) Publish(ev ChangeEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("realtime publish queue full, dropping event",
			"category", ev.Category, "op", ev.Op)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("realtime: close producer: %w", err)
	}
	return nil
}
