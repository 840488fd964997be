package simulator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fixed simulated-hardware parameters submitted with every program.
const (
	DefaultCPUFreq = "1000"
	DefaultMemSize = "256"
)

// Payload is the configuration blob the simulator imports.
type Payload struct {
	Program string            `json:"program"`
	CPUFreq string            `json:"cpuFreq"`
	MemSize string            `json:"memSize"`
	IOUnits []json.RawMessage `json:"ioUnits"`
}

// NewPayload wraps program with the default hardware parameters and no IO units.
func NewPayload(program string) Payload {
	return Payload{
		Program: program,
		CPUFreq: DefaultCPUFreq,
		MemSize: DefaultMemSize,
		IOUnits: []json.RawMessage{},
	}
}

// Encode renders the payload as JSON indented with four spaces.
func (p Payload) Encode() ([]byte, error) {
	if p.IOUnits == nil {
		p.IOUnits = []json.RawMessage{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
