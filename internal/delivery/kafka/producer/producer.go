package producer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	kafka "github.com/vogiaan1904/clinic-queueboard/internal/delivery/kafka"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

type Producer interface {
	PublishChange(ctx context.Context, change models.Change) error
	Close() error
}

type implProducer struct {
	l        logger.Logger
	prod     sarama.SyncProducer
	clientID string
}

func NewProducer(prod sarama.SyncProducer, clientID string, l logger.Logger) Producer {
	return &implProducer{
		l:        l,
		prod:     prod,
		clientID: clientID,
	}
}

func (p *implProducer) PublishChange(ctx context.Context, change models.Change) error {
	now := time.Now()
	val, err := json.Marshal(kafka.BoardChangeEvent{
		Topic:     change.Topic,
		ClientID:  p.clientID,
		Change:    change,
		Timestamp: now,
	})
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishChange: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: kafka.TopicBoardEvents,
		Key:   sarama.StringEncoder(change.Topic), // Partition by board topic for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderTimestamp), Value: []byte(now.Format(time.RFC3339))},
			{Key: []byte(kafka.HeaderClientID), Value: []byte(p.clientID)},
			{Key: []byte(kafka.HeaderKind), Value: []byte(change.Kind)},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}

	return nil
}

// Mirror publishes committed changes from a board manager. HandleChanges never
// blocks the manager: when the buffer is full the newest changes are dropped.
type Mirror struct {
	prod Producer
	l    logger.Logger

	changes chan models.Change
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

func NewMirror(prod Producer, buffer int, l logger.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 256
	}
	m := &Mirror{
		prod:    prod,
		l:       l,
		changes: make(chan models.Change, buffer),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *Mirror) HandleChanges(ctx context.Context, changes []models.Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	for _, c := range changes {
		select {
		case m.changes <- c:
		default:
			m.l.Warnf(ctx, "delivery.kafka.producer.Mirror.HandleChanges: buffer full, dropping %s", c.Kind)
		}
	}
}

// Close flushes buffered changes and stops the publisher. It does not close the producer.
func (m *Mirror) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.changes)
		m.mu.Unlock()
		m.wg.Wait()
	})
}

func (m *Mirror) run() {
	defer m.wg.Done()

	ctx := context.Background()
	for c := range m.changes {
		if err := m.prod.PublishChange(ctx, c); err != nil {
			m.l.Errorf(ctx, "delivery.kafka.producer.Mirror.run: %s: %v", c.Kind, err)
		}
	}
}
