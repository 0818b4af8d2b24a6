//go:build !linux

package ble

// BlueZRadio is only available on Linux.
type BlueZRadio struct{}

// NewRadioProbe always fails outside Linux; the adapter's Enable error is
// the only radio check there.
func NewRadioProbe(string) (*BlueZRadio, error) {
	return nil, ErrRadioProbeUnsupported
}

func (r *BlueZRadio) Powered() (bool, error) { return true, nil }

func (r *BlueZRadio) Close() error { return nil }

var _ RadioProbe = (*BlueZRadio)(nil)
