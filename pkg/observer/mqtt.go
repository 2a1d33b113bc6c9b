package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"driverkit/pkg/property"
)

const (
	DefaultTopicRoot = "driverkit"
	publishTimeout   = 5 * time.Second
)

type MQTTConfig struct {
	Broker    string `mapstructure:"broker" json:"broker" yaml:"broker"`
	ClientID  string `mapstructure:"client_id" json:"client_id" yaml:"client_id"`
	Username  string `mapstructure:"username" json:"username" yaml:"username"`
	Password  string `mapstructure:"password" json:"-" yaml:"password"`
	TopicRoot string `mapstructure:"topic_root" json:"topic_root" yaml:"topic_root"`
	QoS       byte   `mapstructure:"qos" json:"qos" yaml:"qos"`
}

// NewMQTTClient connects to the broker named in cfg.
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(cfg.ClientID)
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Bridge publishes broadcasts to MQTT and turns messages on the set topics
// into update requests.
//
// Topics:
//
//	<root>/<device>/<property>       retained JSON snapshot, empty on delete
//	<root>/<device>/message          JSON message
//	<root>/<device>/set/<property>   JSON update request, inbound
type Bridge struct {
	client Client
	root   string
	qos    byte
	logger log.FieldLogger

	mu        sync.Mutex
	published map[string]bool
}

func NewBridge(client Client, root string, qos byte, logger log.FieldLogger) *Bridge {
	if root == "" {
		root = DefaultTopicRoot
	}
	return &Bridge{
		client:    client,
		root:      root,
		qos:       qos,
		logger:    logger.WithField("component", "mqtt"),
		published: make(map[string]bool),
	}
}

var topicEscaper = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// segment makes s safe to use as a single topic level.
func segment(s string) string {
	return topicEscaper.Replace(s)
}

// PropertyTopic returns the topic a property of device is published on.
func (b *Bridge) PropertyTopic(device, name string) string {
	return b.root + "/" + segment(device) + "/" + segment(name)
}

// MessageTopic returns the topic messages of device are published on.
func (b *Bridge) MessageTopic(device string) string {
	return b.root + "/" + segment(device) + "/message"
}

// SetTopic returns the topic filter update requests for device arrive on.
func (b *Bridge) SetTopic(device string) string {
	return b.root + "/" + segment(device) + "/set/+"
}

func (b *Bridge) Define(s property.Snapshot) {
	b.publishSnapshot(s)
}

func (b *Bridge) Update(s property.Snapshot) {
	b.publishSnapshot(s)
}

func (b *Bridge) publishSnapshot(s property.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		b.logger.Errorf("Failed to marshal %s: %v", s.Name, err)
		return
	}
	topic := b.PropertyTopic(s.Device, s.Name)
	b.mu.Lock()
	b.published[topic] = true
	b.mu.Unlock()
	b.publish(topic, true, payload)
}

func (b *Bridge) Delete(device, name string) {
	topic := b.PropertyTopic(device, name)
	b.mu.Lock()
	delete(b.published, topic)
	b.mu.Unlock()
	// An empty retained payload clears the retained snapshot.
	b.publish(topic, true, []byte{})
}

type messagePayload struct {
	Device    string    `json:"device"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *Bridge) Message(device, msg string) {
	payload, _ := json.Marshal(messagePayload{Device: device, Message: msg, Timestamp: time.Now().UTC()})
	b.publish(b.MessageTopic(device), false, payload)
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	token := b.client.Publish(topic, b.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.logger.Warnf("Timeout publishing to %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Errorf("Failed to publish to %s: %v", topic, err)
	}
}

// Clear empties every retained snapshot the bridge published, so a stopped
// driver leaves no stale state on the broker.
func (b *Bridge) Clear() {
	b.mu.Lock()
	topics := make([]string, 0, len(b.published))
	for t := range b.published {
		topics = append(topics, t)
	}
	b.published = make(map[string]bool)
	b.mu.Unlock()

	for _, t := range topics {
		b.publish(t, true, []byte{})
	}
}

// Serve subscribes to the set topics of device and hands every valid
// request to route until ctx is done. route is called from the MQTT client
// goroutine and must not block on the driver.
func (b *Bridge) Serve(ctx context.Context, device string, route func(property.Request)) error {
	topic := b.SetTopic(device)
	prefix := strings.TrimSuffix(topic, "+")

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		name := strings.TrimPrefix(msg.Topic(), prefix)
		if name == "" || strings.Contains(name, "/") {
			b.logger.Warnf("Ignoring message on %s", msg.Topic())
			return
		}

		var req property.Request
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			b.logger.Errorf("Failed to unmarshal request on %s: %v", msg.Topic(), err)
			return
		}
		req.Device = device
		req.Name = name
		b.logger.Debugf("Request %s for %s", name, device)
		route(req)
	}

	if token := b.client.Subscribe(topic, b.qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %v", topic, token.Error())
	}
	b.logger.Infof("Listening for requests on %s", topic)

	<-ctx.Done()

	if token := b.client.Unsubscribe(topic); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Warnf("Failed to unsubscribe from %s: %v", topic, token.Error())
	}
	return nil
}
