package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenersFireInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int

	b.Subscribe(ReplicaConnected, func(e interface{}) { order = append(order, 1) })
	b.Subscribe(ReplicaConnected, func(e interface{}) { order = append(order, 2) })

	b.Publish(ReplicaConnected, ReplicaConnectedEvent{Addr: "1.2.3.4:1"})

	assert.Equal(t, []int{1, 2}, order)
}

func TestPublishIsolatesPanickingListener(t *testing.T) {
	b := New()
	called := false

	b.Subscribe(ReplicaCapabilities, func(e interface{}) { panic("boom") })
	b.Subscribe(ReplicaCapabilities, func(e interface{}) { called = true })

	assert.NotPanics(t, func() {
		b.Publish(ReplicaCapabilities, ReplicaCapabilitiesEvent{Addr: "x", Capabilities: []string{"psync2"}})
	})
	assert.True(t, called, "a panicking listener must not block the rest")
}

func TestPublishWithNoListenersIsANoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.Publish(ReplicaConnected, ReplicaConnectedEvent{})
	})
}
