package mqtt

import (
	"github.com/sweeney/fermenter-controller/internal/store"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	Thermal      []store.ThermalRecord
	Flow         []store.FlowRecord
	Dosing       []DosingPayload
	SystemEvents []SystemEvent

	// Payloads holds every encoded payload keyed by topic, in publish order.
	Payloads map[string][][]byte

	// PublishError, if set, is returned by every Publish method.
	PublishError error

	Topics    Topics
	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

func (f *FakePublisher) record(topic string, payload []byte) {
	f.Payloads[topic] = append(f.Payloads[topic], payload)
}

func (f *FakePublisher) PublishThermal(r store.ThermalRecord) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatThermalPayload(r, "")
	if err != nil {
		return err
	}
	f.Thermal = append(f.Thermal, r)
	f.record(f.Topics.Thermal(r.Channel), payload)
	return nil
}

func (f *FakePublisher) PublishFlow(r store.FlowRecord) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatFlowPayload(r, "")
	if err != nil {
		return err
	}
	f.Flow = append(f.Flow, r)
	f.record(f.Topics.Flow(r.Channel), payload)
	return nil
}

func (f *FakePublisher) PublishDosing(channel string, n store.NutritionSample) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatDosingPayload(channel, n, "")
	if err != nil {
		return err
	}
	f.Dosing = append(f.Dosing, DosingPayload{Timestamp: stamp(n.Time), Channel: channel, Active: n.Active})
	f.record(f.Topics.Dosing(channel), payload)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.record(f.Topics.System(), payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Thermal = nil
	f.Flow = nil
	f.Dosing = nil
	f.SystemEvents = nil
	f.Payloads = make(map[string][][]byte)
	f.Closed = false
	f.PublishError = nil
}
