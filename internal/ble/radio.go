package ble

import (
	"errors"
	"strings"
)

// DefaultRadio is the BlueZ adapter name probed by NewRadioProbe.
const DefaultRadio = "hci0"

// ErrRadioProbeUnsupported is returned by NewRadioProbe on platforms
// without BlueZ.
var ErrRadioProbeUnsupported = errors.New("ble: radio probe not supported on this platform")

// adapterObjectPath converts "hci0" to "/org/bluez/hci0". A full object
// path is returned unchanged.
func adapterObjectPath(name string) string {
	if name == "" {
		name = DefaultRadio
	}
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/org/bluez/" + name
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter, address string) string {
	escaped := strings.ReplaceAll(normalizeAddress(address), ":", "_")
	return adapterObjectPath(adapter) + "/dev_" + escaped
}
