//go:build linux

package ble

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus    = "org.bluez"
	poweredProp = "org.bluez.Adapter1.Powered"
)

// BlueZRadio reads the adapter power state from BlueZ over the system bus.
type BlueZRadio struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

// NewRadioProbe connects to the system bus and checks that the named
// adapter ("hci0") exists.
func NewRadioProbe(adapter string) (*BlueZRadio, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}
	r := &BlueZRadio{conn: conn, path: dbus.ObjectPath(adapterObjectPath(adapter))}
	if _, err := r.Powered(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// Powered reports the adapter's Powered property.
func (r *BlueZRadio) Powered() (bool, error) {
	v, err := r.conn.Object(bluezBus, r.path).GetProperty(poweredProp)
	if err != nil {
		return false, fmt.Errorf("ble: read %s on %s: %w", poweredProp, r.path, err)
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("ble: %s has unexpected type %s", poweredProp, v.Signature())
	}
	return powered, nil
}

// Close releases the bus connection.
func (r *BlueZRadio) Close() error {
	return r.conn.Close()
}

var _ RadioProbe = (*BlueZRadio)(nil)
