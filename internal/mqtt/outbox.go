package mqtt

// queuedMsg is a serialized message waiting for a broker connection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. Telemetry goes into a
// bounded FIFO that discards the oldest sample when full. Retained messages are kept per
// topic, latest wins, and do not count against the limit.
// Not safe for concurrent use; the caller synchronizes.
type outbox struct {
	telemetry []queuedMsg
	limit     int
	retained  map[string]queuedMsg
	order     []string // retained topics, first seen first
	dropped   int
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{limit: limit, retained: make(map[string]queuedMsg)}
}

// add queues m and reports whether it caused the first telemetry discard since the last
// flush.
func (o *outbox) add(m queuedMsg) (firstDrop bool) {
	if m.retained {
		if _, ok := o.retained[m.topic]; !ok {
			o.order = append(o.order, m.topic)
		}
		o.retained[m.topic] = m
		return false
	}
	if len(o.telemetry) == o.limit {
		copy(o.telemetry, o.telemetry[1:])
		o.telemetry = o.telemetry[:len(o.telemetry)-1]
		o.dropped++
		firstDrop = o.dropped == 1
	}
	o.telemetry = append(o.telemetry, m)
	return firstDrop
}

// flush empties the outbox. Retained messages come first, then telemetry oldest first.
// dropped is the number of telemetry messages discarded since the previous flush.
func (o *outbox) flush() (msgs []queuedMsg, dropped int) {
	for _, topic := range o.order {
		msgs = append(msgs, o.retained[topic])
	}
	msgs = append(msgs, o.telemetry...)
	dropped = o.dropped

	o.telemetry = nil
	o.retained = make(map[string]queuedMsg)
	o.order = nil
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.telemetry) + len(o.order)
}
