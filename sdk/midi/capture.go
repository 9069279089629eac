package midi

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/leandrodaf/mpe/sdk/bridge"
	"github.com/leandrodaf/mpe/sdk/contracts"
)

// Capture runs one input device into a bridge until stopped.
type Capture struct {
	client contracts.ClientMIDI
	bridge *bridge.Bridge
	logger contracts.Logger
	cancel context.CancelFunc
	done   chan error

	stopOnce sync.Once
	stopErr  error
}

// StartCapture selects deviceID on client, starts capture into a new bridge
// and runs the bridge until ctx is done or Stop is called. onPacket receives
// every packet on the bridge goroutine.
func StartCapture(ctx context.Context, client contracts.ClientMIDI, deviceID int, onPacket func([]byte), opts ...contracts.Option) (*Capture, error) {
	options := applyDefaultOptions(opts...)

	if err := client.SelectDevice(deviceID); err != nil {
		return nil, fmt.Errorf("select device %d: %w", deviceID, err)
	}

	b := bridge.New(onPacket, asOptions(options)...)
	if err := client.StartCapture(b); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		client: client,
		bridge: b,
		logger: options.Logger,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { c.done <- b.Run(ctx) }()

	options.Logger.Info("Capture started", options.Logger.Field().Int("deviceID", deviceID))
	return c, nil
}

// Bridge returns the bridge fed by the capture.
func (c *Capture) Bridge() *bridge.Bridge {
	return c.bridge
}

// Wait blocks until the bridge stops and returns its error.
func (c *Capture) Wait() error {
	err := <-c.done
	c.done <- err
	return err
}

// Stop stops the client, then the bridge, and returns both errors combined.
// Later calls return the same result.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		err := c.client.Stop()
		c.cancel()
		err = multierr.Append(err, c.Wait())
		if err != nil {
			c.logger.Error("Capture stopped with errors", c.logger.Field().Error("error", err))
		} else {
			c.logger.Info("Capture stopped")
		}
		c.stopErr = err
	})
	return c.stopErr
}
