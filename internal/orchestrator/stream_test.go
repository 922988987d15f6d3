package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInOrder(t *testing.T) {
	bus := NewBus()
	stream := NewStream(16)
	stream.Attach(bus)

	require.NoError(t, bus.Publish(RunStarted{RunID: "r1"}))
	require.NoError(t, bus.Publish(TaskStarted{RunID: "r1", Plugin: "snake"}))
	stream.Close()

	var names []string
	for e := range stream.Events() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{EventRunStarted, EventTaskStarted}, names)
	assert.Zero(t, stream.Dropped())
}

func TestStreamNeverBlocksPublisher(t *testing.T) {
	bus := NewBus()
	stream := NewStream(2)
	stream.Attach(bus)

	// No consumer is running; publishing past the buffer must not block.
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(StepStarted{Plugin: "snake", Step: "bundle"}))
	}

	assert.Equal(t, uint64(8), stream.Dropped())
	stream.Close()

	count := 0
	for range stream.Events() {
		count++
	}
	assert.Equal(t, 2, count)
}
