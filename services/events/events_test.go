package eventsvc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core"
)

func TestEncode(t *testing.T) {
	evt := core.NewEvent(core.EventAttemptRecorded, "usr-1", map[string]interface{}{"quiz_id": "qz-1"})

	msgs, err := encode([]core.Event{evt})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Equal(t, "usr-1", string(msg.Key))
	assert.Equal(t, evt.OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, core.EventAttemptRecorded, string(msg.Headers[0].Value))

	var decoded core.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.Type, decoded.Type)
	assert.Equal(t, "qz-1", decoded.Payload["quiz_id"])
}

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx,
		core.NewEvent(core.EventAttemptRecorded, "u1", nil),
		core.NewEvent(core.EventSessionCompleted, "u1", nil),
	))
	require.NoError(t, pub.Publish(ctx, core.NewEvent(core.EventAttemptRecorded, "u2", nil)))

	assert.Len(t, pub.Events(), 3)
	assert.Len(t, pub.Events(core.EventAttemptRecorded), 2)
	assert.Len(t, pub.Events(core.EventProgressUpdated), 0)

	pub.Reset()
	assert.Empty(t, pub.Events())
}
