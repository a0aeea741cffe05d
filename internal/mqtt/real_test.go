package mqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/store"
)

// stalledToken never completes, like a publish on a half-open connection.
type stalledToken struct {
	paho.Token
	waits *[]time.Duration
}

func (t stalledToken) WaitTimeout(d time.Duration) bool {
	*t.waits = append(*t.waits, d)
	return false
}

func (t stalledToken) Error() error { return nil }

type stalledClient struct {
	paho.Client
	published []string
	waits     []time.Duration
}

func (c *stalledClient) IsConnectionOpen() bool { return true }

func (c *stalledClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.published = append(c.published, topic)
	return stalledToken{waits: &c.waits}
}

func newStalledPublisher() (*RealPublisher, *stalledClient) {
	c := &stalledClient{}
	return &RealPublisher{
		client: c,
		topics: Topics{Prefix: "fermenter"},
		runID:  "run",
		log:    logger.Nop(),
		outbox: newOutbox(4),
	}, c
}

func TestRealPublisherTelemetryDoesNotWait(t *testing.T) {
	p, c := newStalledPublisher()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	require.NoError(t, p.PublishThermal(store.ThermalRecord{Timestamp: now, Channel: "F1", Temperature: 20}))
	require.NoError(t, p.PublishFlow(store.FlowRecord{Timestamp: now, Channel: "F1", Status: "OK"}))

	assert.Equal(t, []string{"fermenter/F1/thermal", "fermenter/F1/flow"}, c.published)
	assert.Empty(t, c.waits, "QoS 0 telemetry must not block the control loop")
}

func TestRealPublisherAckWaitIsBounded(t *testing.T) {
	p, c := newStalledPublisher()

	err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})
	assert.ErrorIs(t, err, ErrPublishTimeout)
	require.Len(t, c.waits, 1)
	assert.LessOrEqual(t, c.waits[0], time.Second)
}
