package ble

import (
	"fmt"
	"strings"

	"github.com/chaz8081/blecar/internal/ble/protocol"
)

// Property is the set of GATT characteristic capability flags.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
)

// Has reports whether every flag in q is set in p.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// Writable reports whether any write mode is supported.
func (p Property) Writable() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

func (p Property) String() string {
	var parts []string
	if p.Has(PropRead) {
		parts = append(parts, "read")
	}
	if p.Has(PropWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PropWriteWithoutResponse) {
		parts = append(parts, "write_without_response")
	}
	if p.Has(PropNotify) {
		parts = append(parts, "notify")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseProperty maps a config name to its flag.
func ParseProperty(s string) (Property, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return PropRead, nil
	case "write":
		return PropWrite, nil
	case "write_without_response", "write-without-response":
		return PropWriteWithoutResponse, nil
	case "notify":
		return PropNotify, nil
	default:
		return 0, fmt.Errorf("ble: unknown characteristic property %q", s)
	}
}

// WriteMode selects acknowledged or unacknowledged writes.
type WriteMode int

const (
	// WriteWithResponse waits for the peripheral's write confirmation.
	WriteWithResponse WriteMode = iota
	// WriteWithoutResponse is fire-and-forget at the link layer.
	WriteWithoutResponse
)

func (m WriteMode) String() string {
	if m == WriteWithoutResponse {
		return "without-response"
	}
	return "with-response"
}

// NegotiateWriteMode picks the write mode for a characteristic: acknowledged
// writes when supported, otherwise unacknowledged ones.
func NegotiateWriteMode(p Property) (WriteMode, error) {
	switch {
	case p.Has(PropWrite):
		return WriteWithResponse, nil
	case p.Has(PropWriteWithoutResponse):
		return WriteWithoutResponse, nil
	default:
		return 0, fmt.Errorf("%w: characteristic is not writable (%s)", ErrCharacteristicNotFound, p)
	}
}

// Handle is a resolved, writable command characteristic together with its
// negotiated write mode. It is valid only while its link is open.
type Handle struct {
	char Characteristic
	mode WriteMode
}

// newHandle negotiates the write mode for char.
func newHandle(char Characteristic) (*Handle, error) {
	mode, err := NegotiateWriteMode(char.Properties())
	if err != nil {
		return nil, err
	}
	return &Handle{char: char, mode: mode}, nil
}

// Mode returns the negotiated write mode.
func (h *Handle) Mode() WriteMode { return h.mode }

// Send encodes intent and issues exactly one write.
func (h *Handle) Send(intent protocol.Intent) error {
	if h == nil || h.char == nil {
		return ErrNotConnected
	}
	if err := h.char.Write(protocol.Encode(intent), h.mode); err != nil {
		return newStatusError("write", err)
	}
	return nil
}

// resolve finds the target service and its write characteristic among the
// discovered services and negotiates the write mode.
func resolve(services []Service, target Target) (*Handle, error) {
	var svc *Service
	for i := range services {
		if sameUUID(services[i].UUID, target.ServiceUUID) {
			svc = &services[i]
			break
		}
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, target.ServiceUUID)
	}

	for _, c := range svc.Characteristics {
		if c != nil && sameUUID(c.UUID(), target.WriteCharUUID) {
			return newHandle(c)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, target.WriteCharUUID)
}
