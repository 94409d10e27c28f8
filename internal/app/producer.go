package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/gamepad_polling/internal/config"
	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
)

// RunProducer samples the configured controller and publishes its frames
// to MQTT until interrupted.
func RunProducer() error {
	log.Println("starting gamepad polling producer")

	cfg := config.Get()

	src, closer, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// --- connect to MQTT ---
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	eng := newEngine(cfg, src)
	sched := newScheduler(cfg, eng, NewMQTTConsumer(client, cfg.TopicPrefix))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := gamepad.ID(cfg.DeviceID)
	if err := sched.Start(ctx, id, cfg.FrameRate, cfg.Record); err != nil {
		return err
	}
	log.Printf("publishing controller %d on %s at %d fps", id, FrameTopic(cfg.TopicPrefix, id), cfg.FrameRate)

	sched.Wait()
	log.Println("producer: shutting down")
	return nil
}
