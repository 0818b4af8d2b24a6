//go:build !linux

package ble

// gattClient is only needed on Linux.
type gattClient struct{}

func (c *tinyGoCharacteristic) writeWithResponse(data []byte) error {
	_, err := c.char.Write(data)
	return err
}
