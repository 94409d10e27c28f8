package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/gamepad_polling/internal/app"
	"github.com/relabs-tech/gamepad_polling/internal/config"
)

func main() {
	configPath := flag.String("config", "./gamepad_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting gamepad-polling console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
