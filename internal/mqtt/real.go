package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/store"
)

// publishTimeout bounds each replayed message on reconnect.
const publishTimeout = 5 * time.Second

// ackTimeout bounds the wait for a QoS 1 acknowledgement on the control loop. QoS 0
// telemetry is not waited for.
const ackTimeout = 500 * time.Millisecond

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	RunID      string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while the
// connection is down are queued in an outbox and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	runID  string
	log    *logger.Logger

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher and starts connecting in the background. The
// broker is retried forever; publishing before the first connection queues.
func NewRealPublisher(opts Options, log *logger.Logger) *RealPublisher {
	p := &RealPublisher{
		topics: opts.Topics,
		runID:  opts.RunID,
		log:    log.Named("mqtt"),
		outbox: newOutbox(opts.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(opts.Topics.System(), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("connection lost", "error", err)
		})

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending, dropped := p.outbox.flush()
	p.mu.Unlock()

	p.log.Infow("connected", "replay", len(pending), "dropped", dropped)
	reconnected, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	c.Publish(p.topics.System(), 1, true, reconnected)

	for _, m := range pending {
		t := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !t.WaitTimeout(publishTimeout) || t.Error() != nil {
			p.log.Warnw("replay failed, dropping rest of outbox", "topic", m.topic, "error", t.Error())
			return
		}
	}
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// ErrPublishTimeout is returned when a QoS 1 message is not acknowledged in time.
var ErrPublishTimeout = errors.New("mqtt: publish timeout")

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		first := p.outbox.add(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		size := p.outbox.limit
		p.mu.Unlock()
		if first {
			p.log.Warnw("outbox full, dropping oldest telemetry", "capacity", size)
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if qos == 0 {
		return nil
	}
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishThermal sends a vessel snapshot (QoS 0).
func (p *RealPublisher) PublishThermal(r store.ThermalRecord) error {
	payload, err := FormatThermalPayload(r, p.runID)
	if err != nil {
		return fmt.Errorf("format thermal payload: %w", err)
	}
	return p.publish(p.topics.Thermal(r.Channel), 0, false, payload)
}

// PublishFlow sends a flow sample (QoS 0).
func (p *RealPublisher) PublishFlow(r store.FlowRecord) error {
	payload, err := FormatFlowPayload(r, p.runID)
	if err != nil {
		return fmt.Errorf("format flow payload: %w", err)
	}
	return p.publish(p.topics.Flow(r.Channel), 0, false, payload)
}

// PublishDosing sends a pump edge (QoS 1, retained so the last state is visible).
func (p *RealPublisher) PublishDosing(channel string, n store.NutritionSample) error {
	payload, err := FormatDosingPayload(channel, n, p.runID)
	if err != nil {
		return fmt.Errorf("format dosing payload: %w", err)
	}
	return p.publish(p.topics.Dosing(channel), 1, true, payload)
}

// PublishSystem sends a lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
