package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/input"
	"github.com/leandrodaf/mpe/sdk/midi"
	"github.com/leandrodaf/mpe/sdk/mpe"
)

func main() {
	log := logger.NewZapLogger()

	client, err := midi.NewMIDIClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
	)
	if err != nil {
		log.Error("Failed to initialize MIDI client", log.Field().Error("error", err))
		return
	}

	devices, err := client.ListDevices()
	if err != nil || len(devices) == 0 {
		log.Error("No MIDI devices found or error listing devices", log.Field().Error("error", err))
		return
	}
	fmt.Println("Available MIDI devices:", devices)

	demux := input.New(input.WithLogger(log))
	coalescer, err := mpe.NewCoalescer(mpe.WithLogger(log))
	if err != nil {
		log.Error("Failed to create MPE coalescer", log.Field().Error("error", err))
		return
	}
	coalescer.Attach(demux)
	coalescer.OnNoteStart(func(e contracts.VoiceEvent) {
		log.Info("Note start",
			log.Field().Uint8("channel", e.Channel),
			log.Field().Uint8("note", e.Note),
			log.Field().Uint8("velocity", e.Velocity))
	})
	coalescer.OnNoteUpdate(func(e contracts.VoiceEvent) {
		log.Info("Note update",
			log.Field().Uint8("channel", e.Channel),
			log.Field().Int("bend", int(e.PitchBend)),
			log.Field().Uint8("pressure", e.Pressure),
			log.Field().Uint8("timbre", e.Timbre))
	})
	coalescer.OnNoteEnd(func(e contracts.VoiceEvent) {
		log.Info("Note end", log.Field().Uint8("channel", e.Channel), log.Field().Uint8("note", e.Note))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	capture, err := midi.StartCapture(ctx, client, devices[0].Index, demux.HandlePacket, contracts.WithLogger(log))
	if err != nil {
		log.Error("Failed to start capture", log.Field().Error("error", err))
		return
	}
	defer capture.Stop()

	fmt.Println("Capturing MPE voices... Press Ctrl+C to exit.")
	<-ctx.Done()
}
