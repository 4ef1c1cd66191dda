package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

func TestNewEvent(t *testing.T) {
	tenant := uuid.New()
	e := NewEvent(tenant, "sub-ana", models.ActionCompanyCreate)

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, tenant, e.CompanyID)
	assert.Equal(t, "sub-ana", e.ActorID)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestMemoryPublisher(t *testing.T) {
	var p MemoryPublisher
	require.NoError(t, p.Publish(NewEvent(uuid.New(), "a", models.ActionCompanyCreate)))
	require.NoError(t, p.Publish(NewEvent(uuid.New(), "b", models.ActionCompanyUpdate)))

	got := p.Events()
	require.Len(t, got, 2)
	got[0].ActorID = "changed"
	assert.Equal(t, "a", p.Events()[0].ActorID)
}

func TestKafkaPublisherDropsWhenFull(t *testing.T) {
	kp := &KafkaPublisher{
		queue: make(chan models.AuditEvent, 1),
		log:   logrus.NewEntry(logrus.New()),
	}

	assert.NoError(t, kp.Publish(NewEvent(uuid.New(), "a", models.ActionCompanyCreate)))
	assert.ErrorIs(t, kp.Publish(NewEvent(uuid.New(), "a", models.ActionCompanyCreate)), ErrQueueFull)
}

func TestKafkaPublisherRejectsAfterClose(t *testing.T) {
	kp := NewKafkaPublisher("127.0.0.1:1", "", 1, 1)
	require.NoError(t, kp.Close())
	require.NoError(t, kp.Close())

	err := kp.Publish(NewEvent(uuid.New(), "a", models.ActionCompanyCreate))
	assert.ErrorIs(t, err, ErrPublisherClosed)
}
