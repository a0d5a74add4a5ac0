// internal/events/bus_test.go
package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/vsd-gateway/internal/health"
)

func TestPublishByDeviceAndGlobalTopic(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var byName, global []Event
	bus.Subscribe("pmp1", func(e Event) { byName = append(byName, e) })
	bus.Subscribe(TopicData, func(e Event) { global = append(global, e) })

	bus.Publish(Data{Device: "pmp1", At: time.Now()})
	bus.Publish(Data{Device: "pmp2", At: time.Now()})

	assert.Len(t, byName, 1)
	assert.Len(t, global, 2)
}

func TestTransitionTopics(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var online, offline int
	bus.Subscribe(TopicOnline, func(Event) { online++ })
	bus.Subscribe(TopicOffline, func(Event) { offline++ })

	bus.Publish(FromHealth(health.Transition{Device: "pmp1", From: health.Online, To: health.Offline}))
	bus.Publish(FromHealth(health.Transition{Device: "pmp1", From: health.Offline, To: health.Online}))
	bus.Publish(FromHealth(health.Transition{Device: "pmp2", From: health.Online, To: health.Offline}))

	assert.Equal(t, 1, online)
	assert.Equal(t, 2, offline)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(TopicPLC, func(Event) { panic("boom") })
	bus.Subscribe(TopicPLC, func(Event) { delivered = true })

	require.NotPanics(t, func() { bus.Publish(PLC{}) })
	assert.True(t, delivered)
}

func TestDataValue(t *testing.T) {
	d := Data{Readings: []Reading{
		{Name: "frequency", Value: 50},
		{Name: "current", Error: "timeout"},
	}}

	v, ok := d.Value("frequency")
	assert.True(t, ok)
	assert.Equal(t, 50.0, v)

	_, ok = d.Value("current")
	assert.False(t, ok)

	_, ok = d.Value("speed")
	assert.False(t, ok)
}
