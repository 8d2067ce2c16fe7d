package homeassistant

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/config"
)

// Connect dials the broker. The broker marks the meter offline if the
// connection drops.
func Connect(cfg config.MQTTConfig, nodeID string, logger *logrus.Logger) (mqtt.Client, error) {
	base := cfg.BaseTopic
	if base == "" {
		base = "apavital"
	}
	willTopic := fmt.Sprintf("%s/%s/availability", base, NodeID(nodeID))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10*time.Second).
		SetWill(willTopic, payloadOffline, qos, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}
