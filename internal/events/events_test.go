package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SubscribeAndEmit(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id, ch := m.Subscribe(4)
	defer m.Unsubscribe(id)

	m.Emit(ChecklistSaved, "checklist", map[string]interface{}{
		"deal_id": "12345",
	})

	select {
	case event := <-ch:
		require.NotNil(t, event)
		assert.Equal(t, ChecklistSaved, event.Type)
		assert.Equal(t, "checklist", event.Source)
		assert.Equal(t, "12345", event.Payload["deal_id"])
		assert.NotEmpty(t, event.ID)
		assert.NotEmpty(t, event.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscriber channel")
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id, ch := m.Subscribe(1)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.SubscriberCount())

	// Channel is closed after unsubscribe
	_, open := <-ch
	assert.False(t, open)
}

func TestManager_DropsWhenFull(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id, ch := m.Subscribe(1)
	defer m.Unsubscribe(id)

	// Fill the buffer, then emit past it - must not block
	m.Emit(RatesFetched, "rates", nil)
	m.Emit(RatesFetched, "rates", nil)
	m.Emit(RatesFetched, "rates", nil)

	// Only the first event was retained
	event := <-ch
	assert.Equal(t, RatesFetched, event.Type)

	select {
	case <-ch:
		t.Fatal("expected overflow events to be dropped")
	default:
	}
}

func TestManager_MultipleSubscribers(t *testing.T) {
	m := NewManager(zerolog.Nop())

	id1, ch1 := m.Subscribe(4)
	id2, ch2 := m.Subscribe(4)
	defer m.Unsubscribe(id1)
	defer m.Unsubscribe(id2)

	m.Emit(ChecklistSaved, "checklist", nil)

	e1 := <-ch1
	e2 := <-ch2
	assert.Equal(t, e1.ID, e2.ID)
}
