package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/assist-arbiter/internal/logic"
)

// bufferCapacity bounds the messages held while the broker is unreachable.
const bufferCapacity = 256

const publishTimeout = 5 * time.Second

// ErrBuffered is returned when a message could not be sent and was queued
// for replay on reconnect.
var ErrBuffered = errors.New("mqtt: not connected, message buffered")

// ClientID derives the broker client id from the process session id.
func ClientID(prefix, sessionID string) string {
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	return prefix + "-" + sessionID
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are held in an outbox and replayed, oldest first, once
// the connection comes back.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger
	now    func() time.Time

	mu            sync.Mutex
	buf           *outbox
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is retried in the background, so this never blocks on the network.
func NewRealPublisher(broker, sessionID string, logger zerolog.Logger) *RealPublisher {
	p := newPublisher(nil, logger)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID("assist-arbiter", sessionID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func newPublisher(client paho.Client, logger zerolog.Logger) *RealPublisher {
	return &RealPublisher{
		client: client,
		log:    logger.With().Str("component", "mqtt").Logger(),
		now:    time.Now,
		buf:    newOutbox(bufferCapacity),
	}
}

// Publish sends one cycle's output to the state topic.
// QoS 0 (at-most-once), not retained.
func (p *RealPublisher) Publish(out logic.Output, t time.Time) error {
	payload, err := FormatPayload(out, t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicState, payload: payload})
}

// PublishSystem sends a system lifecycle event to the system topic.
// QoS 1 (at-least-once) so lifecycle events are not lost.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages awaiting replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return ErrBuffered
	}
	if err := p.publish(msg); err != nil {
		p.buffer(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	firstDrop := p.buf.push(msg)
	p.mu.Unlock()
	if firstDrop {
		p.log.Warn().Int("capacity", bufferCapacity).Msg("buffer full, dropping oldest")
	}
}

// onConnect replays buffered messages and, after the first connection,
// announces the reconnect.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buf.drain()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	if len(pending) > 0 {
		p.log.Info().Int("messages", len(pending)).Msg("replaying buffered messages")
	}
	for i, msg := range pending {
		if err := p.publish(msg); err != nil {
			p.log.Error().Err(err).Msg("replay failed, re-buffering")
			p.mu.Lock()
			for _, rest := range pending[i:] {
				p.buf.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}

	if !reconnect {
		return
	}
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
	if err := p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
		p.log.Error().Err(err).Msg("failed to publish reconnect event")
	}
}
