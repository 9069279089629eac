// Command mpemon captures an MPE controller, logs its voices and optionally
// replays them on an MPE output port.
//
//	mpemon list [-config mpemon.toml]
//	mpemon monitor [-config mpemon.toml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/multierr"

	"github.com/leandrodaf/mpe/internal/config"
	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/internal/ports"
	"github.com/leandrodaf/mpe/internal/telemetry"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/input"
	"github.com/leandrodaf/mpe/sdk/midi"
	"github.com/leandrodaf/mpe/sdk/mpe"
)

var errUsage = errors.New("usage: mpemon list|monitor [-config path]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mpemon: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command := args[0]
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	switch command {
	case "list":
		return list(cfg, stdout)
	case "monitor":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return monitor(ctx, cfg)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func newLogger(cfg config.Config) (contracts.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logger.NewZapLogger()
	log.SetLevel(level)
	if cfg.Log.File != "" {
		log.SetDestination(contracts.FileLog, cfg.Log.File)
	}
	return log, nil
}

func list(cfg config.Config, stdout io.Writer) error {
	defer gomidi.CloseDriver()

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	client, err := midi.NewMIDIClient(append(opts, contracts.WithLogger(log))...)
	if err != nil {
		return err
	}
	defer client.Stop()

	inputs, err := client.ListDevices()
	if err != nil && !errors.Is(err, ports.ErrNoInputs) {
		return err
	}
	fmt.Fprintln(stdout, "inputs:")
	for _, in := range inputs {
		fmt.Fprintf(stdout, "  %d\t%s\t%s\n", in.Index, in.Name, in.Manufacturer)
	}
	fmt.Fprintln(stdout, "outputs:")
	for _, out := range ports.ListOutputs() {
		fmt.Fprintf(stdout, "  %d\t%s\n", out.Index, out.Name)
	}
	return nil
}

func monitor(ctx context.Context, cfg config.Config) error {
	defer gomidi.CloseDriver()

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var metrics contracts.Metrics = contracts.NopMetrics{}
	if cfg.Metrics.Addr != "" {
		metrics = telemetry.New()
		srv := serveMetrics(cfg.Metrics.Addr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	clientOpts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	clientOpts = append(clientOpts, contracts.WithLogger(log), contracts.WithMetrics(metrics))
	mpeOpts, err := cfg.MPEOptions()
	if err != nil {
		return err
	}
	mpeOpts = append(mpeOpts, mpe.WithLogger(log), mpe.WithMetrics(metrics))

	demux := input.New(input.WithLogger(log), input.WithMetrics(metrics))
	coalescer, err := mpe.NewCoalescer(mpeOpts...)
	if err != nil {
		return err
	}
	coalescer.Attach(demux)
	logVoices(coalescer, log)

	if cfg.Output.Port != "" {
		out, err := ports.OpenOutput(cfg.Output.Port)
		if err != nil {
			return err
		}
		defer out.Close()

		dev, err := mpe.NewDevice(out, mpeOpts...)
		if err != nil {
			return err
		}
		if cfg.Output.ConfigureZone {
			if err := dev.ConfigureZone(); err != nil {
				return fmt.Errorf("configure zone on %q: %w", out.Name(), err)
			}
		}
		defer dev.AllNotesOff()
		newThru(dev, log).attach(coalescer)
		log.Info("MPE thru enabled",
			log.Field().String("port", out.Name()),
			log.Field().Int("members", len(dev.MemberChannels())))
	}

	client, err := midi.NewMIDIClient(clientOpts...)
	if err != nil {
		return err
	}
	capture, err := midi.StartCapture(ctx, client, cfg.Input.Device, demux.HandlePacket, clientOpts...)
	if err != nil {
		return multierr.Append(err, client.Stop())
	}

	<-ctx.Done()
	return capture.Stop()
}

func logVoices(c *mpe.Coalescer, log contracts.Logger) {
	fields := func(e contracts.VoiceEvent) []contracts.Field {
		return []contracts.Field{
			log.Field().Uint64("ts", e.Timestamp),
			log.Field().Uint8("channel", e.Channel),
			log.Field().Uint8("note", e.Note),
			log.Field().Int("bend", int(e.PitchBend)),
			log.Field().Uint8("pressure", e.Pressure),
			log.Field().Uint8("timbre", e.Timbre),
		}
	}
	c.OnNoteStart(func(e contracts.VoiceEvent) {
		log.Info("Voice start", append(fields(e), log.Field().Uint8("velocity", e.Velocity))...)
	})
	c.OnNoteUpdate(func(e contracts.VoiceEvent) {
		log.Debug("Voice update", fields(e)...)
	})
	c.OnNoteEnd(func(e contracts.VoiceEvent) {
		log.Info("Voice end", append(fields(e), log.Field().Uint8("releaseVelocity", e.ReleaseVelocity))...)
	})
}

func serveMetrics(addr string, log contracts.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", log.Field().Error("error", err))
		}
	}()
	log.Info("Serving metrics", log.Field().String("addr", addr))
	return srv
}
