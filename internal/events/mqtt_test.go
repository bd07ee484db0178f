package events

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken implements mqtt.Token for testing.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient implements MQTTClient and records published messages.
type fakeClient struct {
	connected bool
	published []struct {
		topic   string
		payload []byte
	}
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, struct {
		topic   string
		payload []byte
	}{topic, payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func TestPublisherTopicRouting(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisherWithClient(client, "smartroute", nil)

	if err := p.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	tests := []struct {
		kind  Kind
		topic string
	}{
		{KindDecision, "smartroute/decisions"},
		{KindOutcome, "smartroute/outcomes"},
		{KindPattern, "smartroute/patterns"},
		{Kind("other"), "smartroute/events"},
	}
	for _, tt := range tests {
		p.publish(Event{Kind: tt.kind, Owner: "alice", Timestamp: time.Now()})
	}

	if len(client.published) != len(tests) {
		t.Fatalf("published %d messages, want %d", len(client.published), len(tests))
	}
	for i, tt := range tests {
		if client.published[i].topic != tt.topic {
			t.Errorf("kind %q published to %q, want %q", tt.kind, client.published[i].topic, tt.topic)
		}
		var ev Event
		if err := json.Unmarshal(client.published[i].payload, &ev); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if ev.Owner != "alice" {
			t.Errorf("payload owner = %q", ev.Owner)
		}
	}
}

func TestPublisherSkipsWhenDisconnected(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisherWithClient(client, "smartroute", nil)

	p.publish(Event{Kind: KindDecision})
	if len(client.published) != 0 {
		t.Errorf("published while disconnected: %d messages", len(client.published))
	}
}

func TestPublisherRunDrainsChannel(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewMQTTPublisherWithClient(client, "smartroute", nil)

	ch := make(chan Event, 3)
	ch <- Event{Kind: KindDecision}
	ch <- Event{Kind: KindOutcome}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if len(client.published) != 2 {
		t.Errorf("published %d messages, want 2", len(client.published))
	}
}

func TestPublisherDefaultPrefix(t *testing.T) {
	p := NewMQTTPublisherWithClient(&fakeClient{}, "", nil)
	if got := p.topicFor(KindDecision); got != "smartroute/decisions" {
		t.Errorf("topic = %q, want default prefix", got)
	}
}
