package ports

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/multierr"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

var (
	ErrNoInputs   = errors.New("ports: no MIDI inputs found")
	ErrNotOpen    = errors.New("ports: no input selected")
	ErrNilSink    = errors.New("ports: nil capture sink")
	ErrClientDone = errors.New("ports: client stopped")
)

// Client captures input through the gomidi driver registry. It serves the
// platforms that have no native client.
type Client struct {
	logger contracts.Logger

	mu      sync.Mutex
	in      drivers.In
	stopFn  func()
	stopped bool
}

// NewClient returns a Client; it does not open any port.
func NewClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	options.Logger.Info("MIDI client created for the gomidi driver")
	return &Client{logger: options.Logger}, nil
}

func (c *Client) ListDevices() ([]contracts.PortInfo, error) {
	infos := ListInputs()
	if len(infos) == 0 {
		c.logger.Warn(ErrNoInputs.Error())
		return nil, ErrNoInputs
	}
	return infos, nil
}

// SelectDevice opens the input with the given index, closing any previous one.
func (c *Client) SelectDevice(deviceID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClientDone
	}

	in, err := gomidi.InPort(deviceID)
	if err != nil {
		c.logger.Error("Failed to find MIDI input",
			c.logger.Field().Int("deviceID", deviceID),
			c.logger.Field().Error("error", err))
		return fmt.Errorf("%w: input %d: %v", ErrPortNotFound, deviceID, err)
	}
	if err := c.closeLocked(); err != nil {
		c.logger.Warn("Failed to close previous MIDI input", c.logger.Field().Error("error", err))
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("ports: open %q: %w", in.String(), err)
	}
	c.in = in
	c.logger.Info("MIDI device selected",
		c.logger.Field().Int("deviceID", deviceID),
		c.logger.Field().String("deviceName", in.String()))
	return nil
}

// StartCapture listens on the selected input and delivers each message to sink.
func (c *Client) StartCapture(sink contracts.RawSink) error {
	if sink == nil {
		return ErrNilSink
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in == nil {
		return ErrNotOpen
	}
	if c.stopFn != nil {
		c.stopFn()
		c.stopFn = nil
	}

	stop, err := gomidi.ListenTo(c.in, func(msg gomidi.Message, _ int32) {
		sink.Deliver(contracts.NewRawMessage(0, msg))
	}, gomidi.HandleError(func(err error) {
		c.logger.Warn("MIDI listener error", c.logger.Field().Error("error", err))
	}))
	if err != nil {
		return fmt.Errorf("ports: listen %q: %w", c.in.String(), err)
	}
	c.stopFn = stop
	c.logger.Info("Starting MIDI event capture")
	return nil
}

// Stop ends capture and closes the input. It is safe to call more than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.stopFn != nil {
		c.stopFn()
		c.stopFn = nil
	}
	if c.in == nil {
		return nil
	}
	var err error
	if c.in.IsOpen() {
		err = multierr.Append(err, c.in.Close())
	}
	c.in = nil
	return err
}
