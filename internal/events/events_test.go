package events

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *EventBus {
	logger := zerolog.New(io.Discard)
	return NewEventBus(&logger)
}

func TestPublishRoutesByType(t *testing.T) {
	bus := newTestBus()
	var got []string
	bus.Subscribe("order.created", func(e Event) error {
		got = append(got, "typed:"+e.Type)
		return nil
	})
	bus.Subscribe(AllEvents, func(e Event) error {
		got = append(got, "all:"+e.Type)
		return nil
	})

	bus.Publish(Event{Type: "order.created"})
	bus.Publish(Event{Type: "order.closed"})

	assert.Equal(t, []string{"typed:order.created", "all:order.created", "all:order.closed"}, got)
}

func TestPublishJSON(t *testing.T) {
	bus := newTestBus()
	var received Event
	bus.Subscribe("appointment.booked", func(e Event) error {
		received = e
		return nil
	})

	require.NoError(t, bus.PublishJSON("appointment.booked", map[string]int{"master_id": 2}))

	var payload map[string]int
	require.NoError(t, received.Decode(&payload))
	assert.Equal(t, 2, payload["master_id"])
	assert.NotZero(t, received.ID)
	assert.False(t, received.CreatedAt.IsZero())

	assert.Error(t, bus.PublishJSON("bad", make(chan int)))
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := newTestBus()
	calls := 0
	bus.Subscribe("x", func(Event) error { calls++; return errors.New("boom") })
	bus.Subscribe("x", func(Event) error { calls++; return nil })

	bus.Publish(Event{Type: "x"})
	assert.Equal(t, 2, calls)
}

func TestEventIDsIncrease(t *testing.T) {
	bus := newTestBus()
	var ids []int64
	bus.Subscribe(AllEvents, func(e Event) error { ids = append(ids, e.ID); return nil })
	bus.Publish(Event{Type: "a"})
	bus.Publish(Event{Type: "b"})
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])
}
