package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	first := errors.New("first failed")
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls = append(calls, "a")
		return first
	})
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls = append(calls, "b")
		return nil
	})
	d.Subscribe(EventSLAPaused, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventSLABreached})
	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b"}, calls)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
}

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &recordingWriter{}
	sink := NewKafkaSink(w, nil)
	d := NewInMemoryDispatcher()
	sink.Register(d)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, d.Publish(context.Background(), Event{
		ID:        "e-1",
		Type:      EventTicketStatusChanged,
		TicketID:  "t-1",
		Actor:     ActorOf(domain.Actor{ID: "agent-1", Role: domain.RoleAgent}),
		Timestamp: at,
		Payload:   TicketStatusChangedPayload{OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusPending},
	}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "t-1", string(msg.Key))
	assert.Equal(t, "ticket_status_changed", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "agent", decoded["actor"].(map[string]any)["role"])
	assert.Equal(t, "pending", decoded["payload"].(map[string]any)["new_status"])

	w.err = errors.New("broker down")
	err := d.Publish(context.Background(), Event{Type: EventSLAPaused, TicketID: "t-1"})
	assert.ErrorContains(t, err, "broker down")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
