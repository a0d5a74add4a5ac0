// internal/mqtt/client.go
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ClientConfig is the broker connection configuration.
type ClientConfig struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	Reconnect time.Duration
	Timeout   time.Duration
}

// Connect dials the broker. paho reconnects on its own afterwards;
// an unreachable broker at startup is not fatal, the first publish waits for it.
func Connect(cfg ClientConfig, logger zerolog.Logger) (paho.Client, error) {
	log := logger.With().Str("component", "mqtt").Logger()

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.Reconnect).
		SetMaxReconnectInterval(cfg.Reconnect).
		SetOnConnectHandler(func(paho.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			log.Info().Msg("MQTT reconnecting")
		})

	client := paho.NewClient(opts)
	token := client.Connect()

	// with connect retry the token completes only once connected
	if token.WaitTimeout(cfg.Timeout) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, token.Error())
	}

	return client, nil
}
