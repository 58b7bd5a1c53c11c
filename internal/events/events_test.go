package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kaenova/prompty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ Noop }

func (failingPublisher) Publish(context.Context, *Event) error { return errors.New("broker down") }

func TestEmitterStampsAndPublishes(t *testing.T) {
	rec := &Recorder{}
	e := NewEmitter(rec, logger.Discard())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	e.Emit(context.Background(), Event{Type: PromptActivated, ProjectID: "p1", AgentID: "a1", PromptID: "pr1"})

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, PromptActivated, got[0].Type)
	assert.Equal(t, fixed, got[0].Timestamp)
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	e := NewEmitter(failingPublisher{}, logger.Discard())
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), Event{Type: APIKeyRevoked, ProjectID: "p1"})
	})

	var nilEmitter *Emitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), Event{Type: ProjectDeleted})
	})
}

func TestEventJSON(t *testing.T) {
	ev := &Event{Type: PromptDeactivated, ProjectID: "p1", AgentName: "support"}
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.JSON(), &decoded))
	assert.Equal(t, "prompt.deactivated", decoded["type"])
	assert.Equal(t, "support", decoded["agent_name"])
	assert.NotContains(t, decoded, "key_id")
}
