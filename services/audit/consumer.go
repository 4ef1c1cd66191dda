package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// errMalformed marks messages that can never be stored
var errMalformed = errors.New("malformed audit event")

// auditConsumer persists audit events read from Kafka. Offsets are committed
// only once an event is stored or known to be unusable.
type auditConsumer struct {
	reader  messageReader
	events  store.Table[models.AuditEvent]
	backoff time.Duration
	log     *logrus.Entry
}

func newKafkaReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
	})
}

// Run consumes until ctx is cancelled
func (ac *auditConsumer) Run(ctx context.Context) error {
	ac.log.Info("Starting audit consumer")
	for {
		msg, err := ac.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ac.log.WithError(err).Warn("Error reading audit message")
			if !ac.sleep(ctx) {
				return nil
			}
			continue
		}

		for {
			err := ac.handle(ctx, msg)
			if err == nil || errors.Is(err, errMalformed) {
				if err != nil {
					ac.log.WithFields(logrus.Fields{"offset": msg.Offset, "error": err}).Warn("Skipping audit message")
				}
				break
			}
			ac.log.WithFields(logrus.Fields{"offset": msg.Offset, "error": err}).Warn("Failed to store audit event, retrying")
			if !ac.sleep(ctx) {
				return nil
			}
		}

		if err := ac.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			ac.log.WithError(err).Warn("Failed to commit audit offset")
		}
	}
}

func (ac *auditConsumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(ac.backoff):
		return true
	}
}

// handle decodes one message and stores its event. Redelivered events are
// recognised by id and stored once.
func (ac *auditConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event models.AuditEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.ID == uuid.Nil || event.Action == "" {
		return fmt.Errorf("%w: missing id or action", errMalformed)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = msg.Time
	}

	existing, err := ac.events.Select(ctx, store.Filter{"id": event.ID})
	if err != nil && !store.IsNoRows(err) {
		return fmt.Errorf("failed to check audit event %s: %w", event.ID, err)
	}
	if len(existing) > 0 {
		return nil
	}

	if _, err := ac.events.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to store audit event %s: %w", event.ID, err)
	}
	ac.log.WithFields(logrus.Fields{
		"action":     event.Action,
		"empresa_id": event.CompanyID,
	}).Debug("Audit event stored")
	return nil
}

// Close closes the Kafka reader
func (ac *auditConsumer) Close() error {
	if err := ac.reader.Close(); err != nil {
		return fmt.Errorf("failed to close audit reader: %w", err)
	}
	return nil
}
