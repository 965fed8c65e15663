package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/penzjakof/anchat-relay/internal/models"
)

func TestBus(t *testing.T) {
	t.Run("Publish_DeliversToTypeSubscribers", func(t *testing.T) {
		bus := NewBus()

		var got []models.DomainEvent
		bus.Subscribe(models.EventMessageNew, func(e models.DomainEvent) {
			got = append(got, e)
		})

		bus.Publish(models.DomainEvent{Type: models.EventMessageNew, AccountID: "a1"})
		bus.Publish(models.DomainEvent{Type: models.EventMessageRead, AccountID: "a1"})

		assert.Len(t, got, 1)
		assert.Equal(t, "a1", got[0].AccountID)
	})

	t.Run("Publish_DeliversToAllSubscribers", func(t *testing.T) {
		bus := NewBus()

		count := 0
		bus.SubscribeAll(func(e models.DomainEvent) { count++ })

		bus.Publish(models.DomainEvent{Type: models.EventMessageNew})
		bus.Publish(models.DomainEvent{Type: models.EventGeneric})

		assert.Equal(t, 2, count)
	})

	t.Run("Publish_MultipleSubscribersSameType", func(t *testing.T) {
		bus := NewBus()

		first, second := 0, 0
		bus.Subscribe(models.EventEmailNew, func(models.DomainEvent) { first++ })
		bus.Subscribe(models.EventEmailNew, func(models.DomainEvent) { second++ })

		bus.Publish(models.DomainEvent{Type: models.EventEmailNew})

		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})

	t.Run("Publish_PanickingSubscriberIsIsolated", func(t *testing.T) {
		bus := NewBus()

		bus.Subscribe(models.EventMessageNew, func(models.DomainEvent) {
			panic("subscriber bug")
		})
		delivered := false
		bus.Subscribe(models.EventMessageNew, func(models.DomainEvent) {
			delivered = true
		})

		assert.NotPanics(t, func() {
			bus.Publish(models.DomainEvent{Type: models.EventMessageNew})
		})
		assert.True(t, delivered)
	})

	t.Run("Publish_NoSubscribersIsNoop", func(t *testing.T) {
		bus := NewBus()
		assert.NotPanics(t, func() {
			bus.Publish(models.DomainEvent{Type: models.EventGeneric})
		})
	})
}
