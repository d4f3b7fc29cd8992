package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	s := Summary{ChangedFiles: map[string]ChangeType{"x.txt": ChangeNew}, CycleTime: testTime(1)}
	bus.Notify(s)

	got := <-a
	assert.Equal(t, ChangeNew, got.ChangedFiles["x.txt"])
	got = <-b
	assert.Equal(t, testTime(1), got.CycleTime)
}

func TestEventBus_SlowConsumerDropped(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Fill the buffer and then some; extra events are dropped, not blocked on.
	for i := 0; i < 40; i++ {
		bus.Notify(Summary{CycleTime: testTime(1)})
	}
	require.Len(t, ch, cap(ch))
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// Notifying with no subscribers is a no-op.
	bus.Notify(Summary{})
}
