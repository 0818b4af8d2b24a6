// Package protocol implements the single-byte command codes understood by
// the robot car's BLE UART firmware.
package protocol

import (
	"fmt"
	"strings"
)

// Intent is a control command for the car.
type Intent int

const (
	Forward Intent = iota
	Backward
	Left
	Right
	Stop
)

// codes maps each intent to its wire byte. Indexed by Intent.
var codes = [...]byte{
	Forward:  'F',
	Backward: 'B',
	Left:     'L',
	Right:    'R',
	Stop:     'S',
}

var names = [...]string{
	Forward:  "forward",
	Backward: "backward",
	Left:     "left",
	Right:    "right",
	Stop:     "stop",
}

// Intents returns every intent in declaration order.
func Intents() []Intent {
	return []Intent{Forward, Backward, Left, Right, Stop}
}

// Valid reports whether i is one of the defined intents.
func (i Intent) Valid() bool {
	return i >= Forward && i <= Stop
}

func (i Intent) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Intent(%d)", int(i))
	}
	return names[i]
}

// Code returns the wire byte for the intent.
func (i Intent) Code() byte {
	if !i.Valid() {
		return codes[Stop]
	}
	return codes[i]
}

// Encode returns the payload written to the command characteristic.
// An out-of-range intent encodes as Stop so a corrupted value can never
// produce a movement command.
func Encode(i Intent) []byte {
	return []byte{i.Code()}
}

// ParseIntent accepts an intent name ("forward") or its wire code ("F"),
// case-insensitively.
func ParseIntent(s string) (Intent, error) {
	s = strings.TrimSpace(s)
	for _, i := range Intents() {
		if strings.EqualFold(s, names[i]) || strings.EqualFold(s, string(codes[i])) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown intent %q", s)
}
