package mqtt

// bufferedMsg is a publish that could not be sent, kept for replay.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds publishes made while the broker is unreachable. When full the
// oldest message is discarded. The caller must synchronize access.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int // since the last drain
}

func newOutbox(limit int) *outbox {
	return &outbox{msgs: make([]bufferedMsg, 0, limit), limit: limit}
}

// push queues msg. It reports true only for the first discard after a drain,
// so overflow is logged once per outage.
func (o *outbox) push(msg bufferedMsg) (firstDrop bool) {
	if len(o.msgs) == o.limit {
		n := copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:n]
		o.dropped++
		firstDrop = o.dropped == 1
	}
	o.msgs = append(o.msgs, msg)
	return firstDrop
}

// drain returns the queued messages oldest first and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	out := o.msgs
	o.msgs = make([]bufferedMsg, 0, o.limit)
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
