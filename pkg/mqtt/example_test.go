package mqtt_test

import (
	"context"
	"time"

	"cloupeer.io/nanoflash/pkg/log"
	"cloupeer.io/nanoflash/pkg/mqtt"
	"cloupeer.io/nanoflash/pkg/mqtt/topic"
)

// ExampleClient shows how a progress publisher connects and emits one event.
func ExampleClient() {
	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "nanoflash-240AC4123456",
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}
	defer client.Disconnect(ctx)

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Broker unreachable")
		return
	}

	topics := topic.NewBuilder("nanoflash/v1")
	payload := []byte(`{"phase":"erase","level":"info","message":"erasing flash"}`)
	if err := client.Publish(ctx, topics.Progress("240AC4123456"), 1, false, payload); err != nil {
		log.Error(err, "Failed to publish")
	}
}
