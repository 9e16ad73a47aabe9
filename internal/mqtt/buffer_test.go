package mqtt

import (
	"bytes"
	"testing"
)

func queue(o *outbox, from, n int) (firstDrops int) {
	for i := from; i < from+n; i++ {
		if o.push(bufferedMsg{topic: TopicState, payload: []byte{byte(i)}}) {
			firstDrops++
		}
	}
	return firstDrops
}

func firstBytes(msgs []bufferedMsg) []byte {
	out := make([]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestOutboxDrainEmpty(t *testing.T) {
	if got := newOutbox(3).drain(); got != nil {
		t.Errorf("expected nil, got %d messages", len(got))
	}
}

func TestOutboxDropsOldest(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		pushed int
		want   []byte
		drops  int
	}{
		{"below limit", 3, 2, []byte{0, 1}, 0},
		{"at limit", 3, 3, []byte{0, 1, 2}, 0},
		{"past limit", 3, 8, []byte{5, 6, 7}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOutbox(tt.limit)
			if got := queue(o, 0, tt.pushed); got != tt.drops {
				t.Errorf("first-drop reports = %d, want %d", got, tt.drops)
			}
			if got := firstBytes(o.drain()); !bytes.Equal(got, tt.want) {
				t.Errorf("drained %v, want %v", got, tt.want)
			}
			if o.len() != 0 {
				t.Errorf("len after drain = %d", o.len())
			}
		})
	}
}

func TestOutboxDropReportResetsOnDrain(t *testing.T) {
	o := newOutbox(2)
	if got := queue(o, 0, 4); got != 1 {
		t.Errorf("first outage: reports = %d, want 1", got)
	}
	o.drain()

	if got := queue(o, 20, 5); got != 1 {
		t.Errorf("second outage: reports = %d, want 1", got)
	}
	if got := firstBytes(o.drain()); !bytes.Equal(got, []byte{23, 24}) {
		t.Errorf("second outage drained %v", got)
	}
}

func TestOutboxKeepsPublishOptions(t *testing.T) {
	o := newOutbox(1)
	o.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if m := got[0]; m.topic != TopicSystem || m.qos != 1 || !m.retained {
		t.Errorf("publish options lost: %+v", m)
	}
}
