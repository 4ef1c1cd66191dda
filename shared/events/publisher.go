package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

// DefaultTopic carries every audit event
const DefaultTopic = "planboard-audit"

var (
	ErrQueueFull       = errors.New("audit event queue full, event dropped")
	ErrPublisherClosed = errors.New("audit publisher closed")
)

// Publisher hands audit events to the audit pipeline without blocking
type Publisher interface {
	Publish(event models.AuditEvent) error
}

// NewEvent fills in the id and timestamp of an audit event
func NewEvent(companyID uuid.UUID, actorID, action string) models.AuditEvent {
	return models.AuditEvent{
		ID:         uuid.New(),
		CompanyID:  companyID,
		ActorID:    actorID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(models.AuditEvent) error { return nil }

// MemoryPublisher keeps events in memory
type MemoryPublisher struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (p *MemoryPublisher) Publish(event models.AuditEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

// Events returns a copy of every published event
func (p *MemoryPublisher) Events() []models.AuditEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AuditEvent(nil), p.events...)
}

// KafkaPublisher queues events on a buffered channel drained by a worker pool
type KafkaPublisher struct {
	writer      *kafka.Writer
	topic       string
	queue       chan models.AuditEvent
	workerCount int
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	log         *logrus.Entry
}

// NewKafkaPublisher creates a publisher and starts its workers
func NewKafkaPublisher(broker, topic string, workers, buffer int) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 1000
	}

	kp := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		topic:       topic,
		queue:       make(chan models.AuditEvent, buffer),
		workerCount: workers,
		log:         logrus.WithField("component", "audit-publisher"),
	}

	for i := 0; i < kp.workerCount; i++ {
		kp.wg.Add(1)
		go kp.worker(i)
	}
	kp.log.Infof("Started %d audit workers", kp.workerCount)

	return kp
}

// Publish queues event; it never blocks and drops the event when the queue is full
func (kp *KafkaPublisher) Publish(event models.AuditEvent) error {
	kp.mu.RLock()
	defer kp.mu.RUnlock()
	if kp.closed {
		return ErrPublisherClosed
	}

	select {
	case kp.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (kp *KafkaPublisher) worker(id int) {
	defer kp.wg.Done()
	for event := range kp.queue {
		if err := kp.send(event); err != nil {
			kp.log.WithFields(logrus.Fields{
				"worker": id,
				"action": event.Action,
				"error":  err,
			}).Warn("Failed to send audit event")
		}
	}
}

func (kp *KafkaPublisher) send(event models.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Topic: kp.topic,
		Key:   []byte(event.CompanyID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "empresa_id", Value: []byte(event.CompanyID.String())},
			{Key: "actor_id", Value: []byte(event.ActorID)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write audit event to Kafka: %w", err)
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the writer
func (kp *KafkaPublisher) Close() error {
	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		return nil
	}
	kp.closed = true
	close(kp.queue)
	kp.mu.Unlock()

	kp.wg.Wait()

	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	kp.log.Info("Audit publisher shut down")
	return nil
}
