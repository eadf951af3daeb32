package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *ExecutionPlan {
	return &ExecutionPlan{
		Definitions: map[string]string{"batch_size": "500"},
		Connections: []Connection{{Name: "src", Driver: "postgres"}},
		Pipelines: []Pipeline{
			{Name: "orders", Source: Endpoint{Connection: "src", Table: "orders"}},
		},
	}
}

func TestHashIsDeterministicAcrossReserializations(t *testing.T) {
	p := samplePlan()
	h1, err := p.Hash()
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	data, err := ParsePlan(raw)
	require.NoError(t, err)
	h2, err := data.Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestRunIDAndItemIDAreStableForTheSameInputs(t *testing.T) {
	p := samplePlan()
	h, _ := p.Hash()

	assert.Equal(t, RunID(h), RunID(h))
	assert.Equal(t, ItemID(h, 0, "dest"), ItemID(h, 0, "dest"))
	assert.NotEqual(t, ItemID(h, 0, "dest"), ItemID(h, 1, "dest"))
	assert.NotEqual(t, ItemID(h, 0, "dest"), ItemID(h, 0, "other"))
}

func TestLifecycleShutdownTimeoutDefaultsTo30(t *testing.T) {
	assert.Equal(t, 30, Lifecycle{}.ShutdownTimeoutOrDefault())
	assert.Equal(t, 45, Lifecycle{ShutdownTimeoutSeconds: 45}.ShutdownTimeoutOrDefault())
}

func TestConnectionLooksUpByName(t *testing.T) {
	p := samplePlan()
	c, ok := p.Connection("src")
	require.True(t, ok)
	assert.Equal(t, "postgres", c.Driver)

	_, ok = p.Connection("missing")
	assert.False(t, ok)
}
