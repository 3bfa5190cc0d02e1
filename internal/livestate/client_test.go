package livestate_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchcart/widgets/internal/livestate"
	"github.com/launchcart/widgets/internal/livestate/livestatetest"
	"github.com/launchcart/widgets/internal/phx"
)

type counter struct {
	Count int      `json:"count"`
	Label string   `json:"label"`
	Tags  []string `json:"tags"`
}

const topic = "counter:1"

func newClient(t *testing.T, tr *livestatetest.Transport, cfg livestate.Config) *livestate.Client[counter] {
	t.Helper()
	if cfg.Topic == "" {
		cfg.Topic = topic
	}
	c, err := livestate.New[counter](tr, cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := livestate.New[counter](nil, livestate.Config{Topic: topic}, nil)
	assert.Error(t, err)
	_, err = livestate.New[counter](livestatetest.New(), livestate.Config{}, nil)
	assert.Error(t, err)
}

func TestConnect_IsIdempotent(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	assert.Len(t, tr.Joins(), 1)
	assert.True(t, c.Connected())
}

func TestConnect_EvaluatesParamsAtJoin(t *testing.T) {
	tr := livestatetest.New()
	token := ""
	c := newClient(t, tr, livestate.Config{Params: func() phx.Params {
		if token == "" {
			return phx.Params{}
		}
		return phx.Params{"token": token}
	}})

	token = "t-1"
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, phx.Params{"token": "t-1"}, tr.Joins()[0].Params)

	token = "t-2"
	tr.Reconnect(topic)
	require.Len(t, tr.Joins(), 2)
	assert.Equal(t, phx.Params{"token": "t-2"}, tr.Joins()[1].Params)
}

func TestSend_DropsWhenNotJoined(t *testing.T) {
	tr := &livestatetest.Transport{Manual: true}
	c := newClient(t, tr, livestate.Config{Sends: []string{"bump"}})

	assert.False(t, c.Send("bump", nil), "not connected yet")

	require.NoError(t, c.Connect(context.Background()))
	assert.False(t, c.Send("bump", nil), "join still pending")

	tr.Ack(topic)
	assert.True(t, c.Send("bump", map[string]int{"by": 2}))

	pushes := tr.Pushes(topic)
	require.Len(t, pushes, 1)
	assert.Equal(t, "lvs_evt:bump", pushes[0].Event)
	assert.JSONEq(t, `{"by":2}`, string(pushes[0].Payload))
}

func TestSend_DropsUndeclared(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{Sends: []string{"bump"}})
	require.NoError(t, c.Connect(context.Background()))

	assert.False(t, c.Send("reset", nil))
	assert.Empty(t, tr.Pushes(topic))
}

func TestSend_DropsWhileReconnecting(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{Sends: []string{"bump"}})
	require.NoError(t, c.Connect(context.Background()))

	tr.SetStatus(topic, phx.StatusDisconnected, nil)
	assert.False(t, c.Send("bump", nil))

	tr.Ack(topic)
	assert.True(t, c.Send("bump", nil))
}

func TestSnapshots_ReplaceWholesale(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	var seen []counter
	c.OnSnapshot(func(s counter) { seen = append(seen, s) })

	tr.State(topic, map[string]any{"count": 1, "label": "first", "tags": []string{"a"}}, 1)
	tr.State(topic, map[string]any{"count": 2}, 2)

	require.Len(t, seen, 2)
	got, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, counter{Count: 2}, got, "no field of the first snapshot may leak into the second")
	assert.Equal(t, 2, c.Version())
}

func TestSnapshots_AppliedInArrivalOrder(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 7}, 7)
	tr.State(topic, map[string]any{"count": 3}, 3)

	got, _ := c.Snapshot()
	assert.Equal(t, 3, got.Count, "latest arrival wins, versions are not reordered")
}

func TestSnapshots_FilterDeclaredProperties(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{Properties: []string{"count"}})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 4, "label": "hidden"}, 1)

	got, _ := c.Snapshot()
	assert.Equal(t, counter{Count: 4}, got)
}

func TestSnapshots_MalformedStateKeepsPrevious(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 1}, 1)
	tr.State(topic, map[string]any{"count": "not a number"}, 2)

	got, _ := c.Snapshot()
	assert.Equal(t, 1, got.Count)
}

func TestUnsubscribe(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	calls := 0
	unsub := c.OnSnapshot(func(counter) { calls++ })
	tr.State(topic, map[string]any{"count": 1}, 1)
	unsub()
	unsub()
	tr.State(topic, map[string]any{"count": 2}, 2)

	assert.Equal(t, 1, calls)
}

func TestEvents_OnlyDeclaredAreDelivered(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{Receives: []string{"redirect"}})
	require.NoError(t, c.Connect(context.Background()))

	var got []string
	c.OnEvent("redirect", func(p json.RawMessage) { got = append(got, string(p)) })
	c.OnEvent("other", func(p json.RawMessage) { got = append(got, "other") })

	tr.Deliver(topic, "redirect", map[string]string{"url": "https://pay.example"})
	tr.Deliver(topic, "other", map[string]string{})

	require.Len(t, got, 1)
	assert.JSONEq(t, `{"url":"https://pay.example"}`, got[0])

	_, ok := c.Snapshot()
	assert.False(t, ok, "notifications never touch the snapshot")
}

func TestStatePatch_FoldsIntoFullState(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 1, "label": "x"}, 1)
	tr.Deliver(topic, livestate.EventStatePatch, map[string]any{
		"version": 2,
		"patch":   []map[string]any{{"op": "replace", "path": "/count", "value": 5}},
	})

	got, _ := c.Snapshot()
	assert.Equal(t, counter{Count: 5, Label: "x"}, got)
	assert.Empty(t, tr.Pushes(topic, livestate.EventRefresh))
}

func TestStatePatch_VersionGapRequestsRefresh(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 1}, 1)
	tr.Deliver(topic, livestate.EventStatePatch, map[string]any{
		"version": 3,
		"patch":   []map[string]any{{"op": "replace", "path": "/count", "value": 9}},
	})

	got, _ := c.Snapshot()
	assert.Equal(t, 1, got.Count)
	assert.Len(t, tr.Pushes(topic, livestate.EventRefresh), 1)
}

func TestRefusedJoin_RaisesErrorEvent(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{Receives: []string{livestate.EventError}})
	require.NoError(t, c.Connect(context.Background()))

	var errs []json.RawMessage
	c.OnEvent(livestate.EventError, func(p json.RawMessage) { errs = append(errs, p) })
	var statuses []phx.Status
	c.OnStatus(func(sc livestate.StatusChange) { statuses = append(statuses, sc.Status) })

	tr.SetStatus(topic, phx.StatusUnavailable, &phx.ReplyError{Topic: topic, Response: json.RawMessage(`{"reason":"unknown form"}`)})

	require.Len(t, errs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(errs[0], &body))
	assert.Equal(t, "join_refused", body["type"])
	assert.Equal(t, []phx.Status{phx.StatusUnavailable}, statuses)

	// A fresh Connect is allowed once the topic is unavailable.
	require.NoError(t, c.Connect(context.Background()))
	assert.Len(t, tr.Joins(), 2)
}

func TestReconnect_KeepsSnapshot(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	tr.State(topic, map[string]any{"count": 8}, 1)
	tr.Reconnect(topic)

	got, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 8, got.Count)
	assert.True(t, c.Connected())
}

func TestClose_LeavesTopic(t *testing.T) {
	tr := livestatetest.New()
	c := newClient(t, tr, livestate.Config{})
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, tr.Joined(topic))
	assert.Equal(t, phx.StatusClosed, c.Status())
}
