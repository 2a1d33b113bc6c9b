package observer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverkit/pkg/property"
)

type token struct {
	err error
}

func (t *token) Wait() bool { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error { return t.err }

func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool { return false }
func (m *message) Qos() byte { return 0 }
func (m *message) Retained() bool { return false }
func (m *message) Topic() string { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte { return m.payload }
func (m *message) Ack() {}

type publication struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	published    []publication
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	subErr       error
	subscribed   chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler), subscribed: make(chan struct{}, 1)}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publication{topic: topic, retained: retained, payload: payload.([]byte)})
	return &token{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	if c.subErr != nil {
		return &token{err: c.subErr}
	}
	c.mu.Lock()
	c.handlers[topic] = cb
	c.mu.Unlock()
	c.subscribed <- struct{}{}
	return &token{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &token{}
}

func (c *fakeClient) deliver(filter, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[filter]
	c.mu.Unlock()
	h(nil, &message{topic: topic, payload: payload})
}

func (c *fakeClient) publications() []publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publication(nil), c.published...)
}

func newTestBridge(c Client) *Bridge {
	l := log.New()
	l.SetOutput(io.Discard)
	return NewBridge(c, "obs", 0, l)
}

func TestBridgePublishesSnapshots(t *testing.T) {
	c := newFakeClient()
	b := newTestBridge(c)

	snap := property.Snapshot{Device: "Dummy Dome", Name: "DOME_SHUTTER", State: property.StateBusy}
	b.Define(snap)
	b.Update(snap)

	pubs := c.publications()
	require.Len(t, pubs, 2)
	for _, p := range pubs {
		assert.Equal(t, "obs/Dummy Dome/DOME_SHUTTER", p.topic)
		assert.True(t, p.retained)

		var got map[string]any
		require.NoError(t, json.Unmarshal(p.payload, &got))
		assert.Equal(t, "Busy", got["state"])
		assert.Equal(t, "DOME_SHUTTER", got["name"])
	}
}

func TestBridgeDeleteClearsRetained(t *testing.T) {
	c := newFakeClient()
	b := newTestBridge(c)

	b.Delete("Dummy Dome", "DOME_SHUTTER")
	pubs := c.publications()
	require.Len(t, pubs, 1)
	assert.Equal(t, publication{topic: "obs/Dummy Dome/DOME_SHUTTER", retained: true, payload: []byte{}}, pubs[0])
}

func TestBridgeClear(t *testing.T) {
	c := newFakeClient()
	b := newTestBridge(c)

	b.Update(property.Snapshot{Device: "d", Name: "A"})
	b.Update(property.Snapshot{Device: "d", Name: "B"})
	b.Delete("d", "B")
	b.Clear()

	pubs := c.publications()
	require.Len(t, pubs, 4)
	assert.Equal(t, "obs/d/A", pubs[3].topic)
	assert.Empty(t, pubs[3].payload)
	assert.True(t, pubs[3].retained)
}

func TestBridgeMessage(t *testing.T) {
	c := newFakeClient()
	b := newTestBridge(c)

	b.Message("Dummy Dome", "Dummy Dome is online")
	pubs := c.publications()
	require.Len(t, pubs, 1)
	assert.Equal(t, "obs/Dummy Dome/message", pubs[0].topic)
	assert.False(t, pubs[0].retained)

	var got messagePayload
	require.NoError(t, json.Unmarshal(pubs[0].payload, &got))
	assert.Equal(t, "Dummy Dome is online", got.Message)
	assert.Equal(t, "Dummy Dome", got.Device)
}

func TestTopicsEscapeWildcards(t *testing.T) {
	b := newTestBridge(newFakeClient())
	assert.Equal(t, "obs/a_b_c_d/X", b.PropertyTopic("a/b+c#d", "X"))
	assert.Equal(t, "obs/dev/set/+", b.SetTopic("dev"))
}

func TestBridgeServe(t *testing.T) {
	c := newFakeClient()
	b := newTestBridge(c)

	var mu sync.Mutex
	var got []property.Request
	route := func(req property.Request) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, req)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, "Dome", route) }()
	<-c.subscribed

	filter := "obs/Dome/set/+"
	c.deliver(filter, "obs/Dome/set/DOME_SHUTTER", []byte(`{"switches":[{"name":"SHUTTER_OPEN","on":true}]}`))
	c.deliver(filter, "obs/Dome/set/DOME_SHUTTER", []byte(`not json`))
	c.deliver(filter, "obs/Dome/set/", []byte(`{}`))
	c.deliver(filter, "obs/Dome/set/ABS_DOME_POSITION", []byte(`{"device":"Other","name":"X","numbers":[{"name":"DOME_ABSOLUTE_POSITION","value":90}]}`))

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, property.Request{
		Device:   "Dome",
		Name:     "DOME_SHUTTER",
		Switches: []property.SwitchValue{{Name: "SHUTTER_OPEN", On: true}},
	}, got[0])
	assert.Equal(t, "Dome", got[1].Device)
	assert.Equal(t, "ABS_DOME_POSITION", got[1].Name)
	assert.Equal(t, []property.NumberValue{{Name: "DOME_ABSOLUTE_POSITION", Value: 90}}, got[1].Numbers)
	assert.Equal(t, []string{filter}, c.unsubscribed)
}

func TestBridgeServeSubscribeError(t *testing.T) {
	c := newFakeClient()
	c.subErr = errors.New("not authorized")
	b := newTestBridge(c)

	err := b.Serve(context.Background(), "Dome", func(property.Request) {})
	assert.ErrorContains(t, err, "not authorized")
}
