// Package ble provides the BLE central that drives a robot car exposing a
// UART-style GATT service. It handles discovery, the connection lifecycle
// and transmission of single-byte command codes.
package ble

import (
	"context"
	"strings"
)

// Default identity of the BLE_CAR firmware.
const (
	DefaultTargetAddress = "B0:A6:04:5A:91:96"
	DefaultTargetName    = "BLE_CAR"
	ServiceUUID          = "c6fbdd3c-7123-4c9e-86ab-005f1a7eda01"
	WriteCharUUID        = "d769facf-a4da-47ba-9253-65359ee480fb"
	ReadCharUUID         = "b88e098b-e464-4b54-b827-79eb2b150a9f"
)

// Target identifies the peripheral and the GATT endpoints to resolve.
type Target struct {
	Address       string
	Name          string
	ServiceUUID   string
	WriteCharUUID string
	// ReadCharUUID is the firmware's notify characteristic. It is not used
	// for commands.
	ReadCharUUID string
}

// DefaultTarget returns the identity of the stock firmware.
func DefaultTarget() Target {
	return Target{
		Address:       DefaultTargetAddress,
		Name:          DefaultTargetName,
		ServiceUUID:   ServiceUUID,
		WriteCharUUID: WriteCharUUID,
		ReadCharUUID:  ReadCharUUID,
	}
}

// Device is an observed BLE peripheral. Handle is opaque to this package and
// is passed back to the Adapter on Connect.
type Device struct {
	Name    string
	Address string
	RSSI    int
	Handle  any
}

// Characteristic represents a resolved GATT characteristic.
type Characteristic interface {
	// UUID returns the characteristic UUID.
	UUID() string
	// Properties returns the capability flags advertised for the characteristic.
	Properties() Property
	// Write sends data using the given write mode. It returns once the
	// underlying link has completed or failed the write.
	Write(data []byte, mode WriteMode) error
}

// Service is a discovered GATT service and its characteristics.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Connection represents an open link to a peripheral.
type Connection interface {
	// DiscoverServices enumerates the peripheral's services.
	DiscoverServices(ctx context.Context) ([]Service, error)
	// Disconnect terminates the link and releases its resources.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports every advertisement to found until ctx is cancelled or
	// the scan fails. Cancellation returns nil.
	Scan(ctx context.Context, found func(Device)) error
	// Connect opens a link to the device.
	Connect(ctx context.Context, device Device) (Connection, error)
}

// RadioProbe reports whether the host radio is powered.
type RadioProbe interface {
	Powered() (bool, error)
}

// normalizeAddress makes hardware addresses comparable regardless of case.
func normalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}

// sameUUID compares UUID strings case-insensitively.
func sameUUID(a, b string) bool {
	return normalizeUUID(a) == normalizeUUID(b)
}
