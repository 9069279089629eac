//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/mpe/internal/midi/splitter"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrNoMIDIDevices       = errors.New("no MIDI devices found")
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI device")
	ErrCreateInputPort     = errors.New("error creating input port")
	ErrNilSink             = errors.New("nil capture sink")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

type portFactory func() (coremidi.InputPort, error)

type sinkBox struct {
	sink contracts.RawSink
}

// ClientMid captures MIDI input on Darwin (macOS) through CoreMIDI.
type ClientMid struct {
	logger    contracts.Logger
	sink      atomic.Pointer[sinkBox] // Current capture sink; nil until StartCapture.
	client    coremidi.Client         // CoreMIDI client instance for MIDI operations.
	inputPort coremidi.InputPort      // Input port for receiving MIDI events.
	portReady bool                    // inputPort has been created.
	newPort   portFactory             // Creates inputPort on first use.
	portConn  internalPortConnection  // Connection to the selected source.
	splitter  splitter.Splitter       // Running status for the connected source.
	mu        sync.Mutex              // Guards connection state.
	wg        sync.WaitGroup          // Tracks in-flight CoreMIDI callbacks.
	stopOnce  sync.Once               // Ensures Stop() is executed only once.
}

// NewMIDIClient creates a CoreMIDI client named after options.CoreMIDIConfig.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("MIDI client successfully created",
		options.Logger.Field().String("clientName", options.CoreMIDIConfig.ClientName))

	m := &ClientMid{
		logger: options.Logger,
		client: client,
	}
	m.newPort = func() (coremidi.InputPort, error) {
		return coremidi.NewInputPort(m.client, "Input Port", m.handlePacket)
	}
	return m, nil
}

// ListDevices returns the available CoreMIDI sources.
func (m *ClientMid) ListDevices() ([]contracts.PortInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	if len(sources) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.PortInfo, len(sources))
	for i, source := range sources {
		entity := source.Entity()
		devices[i] = contracts.PortInfo{
			Index:        i,
			Name:         source.Name(),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// SelectDevice connects to the source at deviceID, replacing any previous connection.
func (m *ClientMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI sources: %w", err)
	}
	if deviceID < 0 || deviceID >= len(sources) {
		m.logger.Error(ErrInvalidMIDIDevice.Error(), m.logger.Field().Int("deviceID", deviceID))
		return fmt.Errorf("%w: %d", ErrInvalidMIDIDevice, deviceID)
	}

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
		m.wg.Wait()
	}
	m.splitter.Reset()

	source := sources[deviceID]
	m.logger.Info("MIDI device selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", source.Name()))

	port, err := m.ensureInputPort()
	if err != nil {
		return err
	}

	m.portConn, err = port.Connect(source)
	if err != nil {
		m.logger.Error(ErrMIDIConnectionError.Error(), m.logger.Field().Error("error", err))
		return fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}

	m.logger.Info("MIDI device successfully connected")
	return nil
}

// ensureInputPort creates the input port on first use; later connections
// reuse it. Callers hold m.mu.
func (m *ClientMid) ensureInputPort() (coremidi.InputPort, error) {
	if m.portReady {
		return m.inputPort, nil
	}
	port, err := m.newPort()
	if err != nil {
		m.logger.Error(ErrCreateInputPort.Error(), m.logger.Field().Error("error", err))
		return m.inputPort, fmt.Errorf("%w: %v", ErrCreateInputPort, err)
	}
	m.inputPort = port
	m.portReady = true
	return port, nil
}

// handlePacket splits a CoreMIDI packet list entry into messages for the sink.
// CoreMIDI delivers packets for one source serially.
func (m *ClientMid) handlePacket(_ coremidi.Source, packet coremidi.Packet) {
	m.wg.Add(1)
	defer m.wg.Done()

	box := m.sink.Load()
	if box == nil {
		return
	}
	m.splitter.Split(uint64(time.Now().UnixMicro()), packet.Data, box.sink.Deliver)
}

// StartCapture begins delivering messages from the selected source to sink.
func (m *ClientMid) StartCapture(sink contracts.RawSink) error {
	if sink == nil {
		m.logger.Error("StartCapture called with nil sink")
		return ErrNilSink
	}
	if m.sink.Swap(&sinkBox{sink: sink}) != nil {
		m.logger.Warn("Capture already started; replacing sink")
	}
	m.logger.Info("Starting MIDI event capture")
	return nil
}

// Stop disconnects from the source and waits for in-flight callbacks.
// Later calls are no-ops.
func (m *ClientMid) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.sink.Store(nil)
		if m.portConn != nil {
			m.portConn.Disconnect()
			m.portConn = nil
		}
		m.wg.Wait()
		m.logger.Info("MIDI capture stopped")
	})
	return nil
}
