// Package ports talks to MIDI ports through the gomidi driver registry. A
// driver must be registered by a blank import, usually rtmididrv, in the
// main package.
package ports

import (
	"errors"
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

var ErrPortNotFound = errors.New("ports: no such port")

// ListInputs returns the input ports known to the registered driver.
func ListInputs() []contracts.PortInfo {
	ins := gomidi.GetInPorts()
	infos := make([]contracts.PortInfo, 0, len(ins))
	for _, in := range ins {
		infos = append(infos, contracts.PortInfo{Index: in.Number(), Name: in.String()})
	}
	return infos
}

// ListOutputs returns the output ports known to the registered driver.
func ListOutputs() []contracts.PortInfo {
	outs := gomidi.GetOutPorts()
	infos := make([]contracts.PortInfo, 0, len(outs))
	for _, out := range outs {
		infos = append(infos, contracts.PortInfo{Index: out.Number(), Name: out.String()})
	}
	return infos
}

// findOutput resolves an output by exact name, then by case-insensitive
// substring.
func findOutput(name string) (drivers.Out, error) {
	outs := gomidi.GetOutPorts()
	for _, out := range outs {
		if out.String() == name {
			return out, nil
		}
	}
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), strings.ToLower(name)) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: output %q", ErrPortNotFound, name)
}
