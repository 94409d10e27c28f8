package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/gamepad_polling/internal/config"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

// frameHandler decodes published frames and prints them.
func frameHandler(print func(string)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var f scheduler.Frame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: frame unmarshal error on %s: %v", msg.Topic(), err)
			return
		}
		print(FormatFrame(f))
	}
}

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	topic := cfg.TopicPrefix + "/+"
	token := client.Subscribe(topic, 0, frameHandler(func(line string) { fmt.Println(line) }))
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return token.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
