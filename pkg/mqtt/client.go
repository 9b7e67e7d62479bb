package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler handles one inbound message. It runs on the paho receive
// goroutine and must return quickly.
type MessageHandler func(topic string, payload []byte) error

// Config holds broker connection settings
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client wraps a paho client. Subscriptions are remembered and restored
// after every reconnect, since sessions are clean.
type Client struct {
	client paho.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient connects to the broker with auto-reconnect enabled
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	c := &Client{
		logger: logger.Named("mqtt"),
		subs:   make(map[string]subscription),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("Connection to broker lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		c.logger.Info("Reconnecting to broker", zap.String("broker", cfg.Broker))
	})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		// ConnectRetry keeps trying in the background
		c.logger.Warn("MQTT broker not reachable yet, still connecting", zap.String("broker", cfg.Broker))
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	c.logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker), zap.String("client_id", cfg.ClientID))
	return c, nil
}

func (c *Client) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			c.logger.Error("Failed to restore subscription", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Subscribe registers handler for topic, wildcards included
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	s := subscription{qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// restored by onConnect
		return nil
	}
	return c.subscribe(topic, s)
}

func (c *Client) subscribe(topic string, s subscription) error {
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, msg paho.Message) {
		if err := s.handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("Error handling MQTT message", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	c.logger.Info("Subscribed", zap.String("topic", topic), zap.Uint8("qos", s.qos))
	return nil
}

// Publish sends a message and waits for the broker acknowledgement
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes subscriptions
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect closes the connection, waiting up to 250ms for in-flight work
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}

// IsConnected reports the connection state
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
