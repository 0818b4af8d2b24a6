package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrRadioDisabled is reported when the host radio is off or cannot be enabled.
	ErrRadioDisabled = errors.New("ble: bluetooth is disabled")
	// ErrNoDeviceSelected is carried by the event recorded when Connect is
	// requested before a scan matched the target.
	ErrNoDeviceSelected = errors.New("ble: no device selected")
	// ErrNotConnected is returned by Send outside the Ready state.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrServiceNotFound means the peripheral lacks the UART service (wrong device).
	ErrServiceNotFound = errors.New("ble: UART service not found")
	// ErrCharacteristicNotFound means the service lacks a writable command
	// characteristic (wrong firmware).
	ErrCharacteristicNotFound = errors.New("ble: write characteristic not found")
	// ErrBusy is carried by the event recorded when a scan is requested while
	// connecting or connected.
	ErrBusy = errors.New("ble: busy")
	// ErrLinkLost is the failure reason when the link drops mid-connection.
	ErrLinkLost = errors.New("ble: link lost")
	// ErrClosed is returned by Send after Close. It matches ErrNotConnected.
	ErrClosed = fmt.Errorf("%w: controller closed", ErrNotConnected)
)

// StatusCoder is implemented by driver errors that carry a platform
// status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a driver failure for one operation.
type StatusError struct {
	Op   string // "scan", "connect", "discover services", "write"
	Code int    // platform status code, -1 when unknown
	Err  error
}

func (e *StatusError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("ble: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ble: %s failed (status %d): %v", e.Op, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// newStatusError wraps err, pulling the status code out of the driver error
// when it has one.
func newStatusError(op string, err error) *StatusError {
	code := -1
	var sc StatusCoder
	if errors.As(err, &sc) {
		code = sc.StatusCode()
	}
	return &StatusError{Op: op, Code: code, Err: err}
}
