// Package mqttio wraps the broker client, the inbound Gateway (validation,
// auto-registration, routing), and the outbound Command Dispatcher.
package mqttio

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Buchi-dev/puretrack/internal/config"
)

// Client wraps the paho connection with the reconnect policy named in the
// external interfaces: exponential backoff, base 1s, factor 2, cap 60s.
type Client struct {
	client paho.Client
	cfg    config.MQTTConfig
}

func NewClient(cfg config.MQTTConfig, reconnectBase, reconnectCap time.Duration) *Client {
	c := &Client{cfg: cfg}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(reconnectCap)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	opts.OnConnect = func(paho.Client) {
		log.Println("mqtt: connected to broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Println("mqtt: reconnecting")
	}

	_ = reconnectBase // the paho client manages its own backoff curve internally once auto-reconnect is set; reconnectBase documents the intended floor for external interface parity

	c.client = paho.NewClient(opts)
	return c
}

// Connect blocks for the initial handshake. A failure here is Fatal per the
// error taxonomy: the caller classifies it as a broker auth rejection (exit
// code 2) or any other connect failure (exit code 1) and aborts startup.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		log.Println("mqtt: disconnected")
	}
}

func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) Raw() paho.Client { return c.client }
