package mqtt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func telemetry(i int) queuedMsg {
	return queuedMsg{topic: "fermenter/F1/thermal", payload: []byte(fmt.Sprint(i)), qos: 0}
}

func payloads(msgs []queuedMsg) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.payload)
	}
	return out
}

func TestOutboxEmptyFlush(t *testing.T) {
	o := newOutbox(4)
	msgs, dropped := o.flush()
	assert.Empty(t, msgs)
	assert.Zero(t, dropped)
	assert.Zero(t, o.len())
}

func TestOutboxKeepsTelemetryOrder(t *testing.T) {
	o := newOutbox(4)
	for i := 0; i < 3; i++ {
		assert.False(t, o.add(telemetry(i)))
	}
	assert.Equal(t, 3, o.len())

	msgs, dropped := o.flush()
	assert.Equal(t, []string{"0", "1", "2"}, payloads(msgs))
	assert.Zero(t, dropped)
	assert.Zero(t, o.len())
}

func TestOutboxDiscardsOldestTelemetry(t *testing.T) {
	o := newOutbox(3)
	var firsts int
	for i := 0; i < 6; i++ {
		if o.add(telemetry(i)) {
			firsts++
		}
	}
	assert.Equal(t, 1, firsts, "only the first discard is reported")

	msgs, dropped := o.flush()
	assert.Equal(t, []string{"3", "4", "5"}, payloads(msgs))
	assert.Equal(t, 3, dropped)
}

func TestOutboxDropReportedAgainAfterFlush(t *testing.T) {
	o := newOutbox(1)
	o.add(telemetry(0))
	require.True(t, o.add(telemetry(1)))
	assert.False(t, o.add(telemetry(2)))

	o.flush()
	o.add(telemetry(3))
	assert.True(t, o.add(telemetry(4)))
}

func TestOutboxRetainedLatestWins(t *testing.T) {
	o := newOutbox(2)
	o.add(queuedMsg{topic: "fermenter/system", payload: []byte("STARTUP"), qos: 1, retained: true})
	o.add(telemetry(0))
	o.add(queuedMsg{topic: "fermenter/system", payload: []byte("HEARTBEAT"), qos: 1, retained: true})
	o.add(queuedMsg{topic: "fermenter/F1/dosing", payload: []byte("on"), qos: 1, retained: true})
	o.add(telemetry(1))
	o.add(telemetry(2))

	assert.Equal(t, 4, o.len())
	msgs, dropped := o.flush()
	assert.Equal(t, []string{"HEARTBEAT", "on", "1", "2"}, payloads(msgs))
	assert.Equal(t, 1, dropped, "retained messages never push telemetry out")
	assert.True(t, msgs[0].retained)
	assert.Equal(t, byte(1), msgs[0].qos)
}

func TestOutboxMinimumLimit(t *testing.T) {
	o := newOutbox(0)
	o.add(telemetry(0))
	o.add(telemetry(1))
	msgs, _ := o.flush()
	assert.Equal(t, []string{"1"}, payloads(msgs))
}
