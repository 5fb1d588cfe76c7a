package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker[int]()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(42)

	assert.Equal(t, 42, <-sub1)
	assert.Equal(t, 42, <-sub2)
}

func TestBrokerPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBrokerWithBuffer[int](1)
	sub := b.Subscribe()

	b.Publish(1) // fills the buffer
	b.Publish(2) // must drop, not block

	assert.Equal(t, 1, <-sub)
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker[int]()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBrokerSubscriberCount(t *testing.T) {
	b := NewBroker[string]()
	assert.Equal(t, 0, b.SubscriberCount())

	sub1 := b.Subscribe()
	_ = b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())
}
