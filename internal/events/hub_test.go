package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/blockbridge/internal/bridge"
)

func TestHubRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("tick", map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].ID)
	assert.Equal(t, int64(5), snap[2].ID)

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.JSONEq(t, `{"n":4}`, string(since[0].Data))
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish("hello", nil)
	select {
	case ev := <-ch:
		assert.Equal(t, "hello", ev.Type)
		assert.JSONEq(t, `{}`, string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers())
	cancel()
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish("flood", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestObservePublishesDispatchEvents(t *testing.T) {
	h := NewHub(10)

	h.Observe(bridge.Outcome{
		RequestID: "r1",
		Entry:     bridge.EntryBlock,
		Event:     "gs_motion_move",
		Wait:      true,
		Status:    bridge.StatusSent,
		Result:    "ok",
		Duration:  12 * time.Millisecond,
	})
	h.Observe(bridge.Outcome{
		RequestID: "r2",
		Entry:     bridge.EntryClick,
		Event:     bridge.OpcodeFlagClicked,
		Status:    bridge.StatusFault,
		Result:    bridge.CodeFault,
		Err:       errors.New("boom"),
	})
	h.Observe(bridge.Outcome{Status: "unknown"})

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, TypeDispatchSent, snap[0].Type)
	assert.Equal(t, TypeDispatchFault, snap[1].Type)

	var d Dispatch
	require.NoError(t, json.Unmarshal(snap[1].Data, &d))
	assert.Equal(t, "r2", d.RequestID)
	assert.Equal(t, "click", d.Entry)
	assert.Equal(t, "boom", d.Error)
	assert.EqualValues(t, -110, d.Result)
}

func TestObserveUnencodableResultKeepsEvent(t *testing.T) {
	h := NewHub(8)
	h.Observe(bridge.Outcome{
		RequestID: "r1",
		Entry:     bridge.EntryBlock,
		Event:     "gs_sound_play",
		Status:    bridge.StatusSent,
		Result:    make(chan int),
	})

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, TypeDispatchSent, snap[0].Type)

	var data map[string]string
	require.NoError(t, json.Unmarshal(snap[0].Data, &data))
	assert.Contains(t, data["error"], "unencodable event data")
}
