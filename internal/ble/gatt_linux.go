//go:build linux

package ble

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	gattCharIface      = "org.bluez.GattCharacteristic1"
)

// managedObjects is the reply of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// gattBus is the part of the BlueZ D-Bus API used for acknowledged writes.
type gattBus interface {
	ManagedObjects() (managedObjects, error)
	WriteValue(path dbus.ObjectPath, data []byte, options map[string]dbus.Variant) error
}

type systemGattBus struct {
	conn *dbus.Conn
}

func (b systemGattBus) ManagedObjects() (managedObjects, error) {
	var objs managedObjects
	err := b.conn.Object(bluezBus, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objs)
	return objs, err
}

func (b systemGattBus) WriteValue(path dbus.ObjectPath, data []byte, options map[string]dbus.Variant) error {
	return b.conn.Object(bluezBus, path).Call(gattCharIface+".WriteValue", 0, data, options).Err
}

// gattClient issues acknowledged writes through BlueZ, since tinygo only
// offers write-without-response on Linux. Characteristic object paths are
// resolved once per device and UUID.
type gattClient struct {
	mu    sync.Mutex
	bus   gattBus
	paths map[string]dbus.ObjectPath
}

func (c *tinyGoCharacteristic) writeWithResponse(data []byte) error {
	return c.adapter.gatt.write(DefaultRadio, c.address, c.uuid, data)
}

func (g *gattClient) write(adapter, address, uuid string, data []byte) error {
	bus, err := g.connect()
	if err != nil {
		return err
	}
	path, err := g.resolve(bus, adapter, address, uuid)
	if err != nil {
		return err
	}

	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if err := bus.WriteValue(path, data, opts); err != nil {
		g.forget(address, uuid)
		return fmt.Errorf("ble: write %s: %w", path, err)
	}
	return nil
}

func (g *gattClient) connect() (gattBus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bus != nil {
		return g.bus, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}
	g.bus = systemGattBus{conn: conn}
	return g.bus, nil
}

func (g *gattClient) resolve(bus gattBus, adapter, address, uuid string) (dbus.ObjectPath, error) {
	key := pathKey(address, uuid)
	g.mu.Lock()
	path, ok := g.paths[key]
	g.mu.Unlock()
	if ok {
		return path, nil
	}

	objs, err := bus.ManagedObjects()
	if err != nil {
		return "", fmt.Errorf("ble: list BlueZ objects: %w", err)
	}
	path, ok = findCharacteristicPath(objs, deviceObjectPath(adapter, address), uuid)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrCharacteristicNotFound, uuid, address)
	}

	g.mu.Lock()
	if g.paths == nil {
		g.paths = make(map[string]dbus.ObjectPath)
	}
	g.paths[key] = path
	g.mu.Unlock()
	return path, nil
}

func (g *gattClient) forget(address, uuid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.paths, pathKey(address, uuid))
}

func pathKey(address, uuid string) string {
	return normalizeAddress(address) + "|" + normalizeUUID(uuid)
}

// findCharacteristicPath returns the object path of the GATT characteristic
// with the given UUID below device. When several services expose the UUID
// the lowest path wins.
func findCharacteristicPath(objs managedObjects, device, uuid string) (dbus.ObjectPath, bool) {
	var found []string
	for path, ifaces := range objs {
		if !strings.HasPrefix(string(path), device+"/") {
			continue
		}
		props, ok := ifaces[gattCharIface]
		if !ok {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		if s, ok := v.Value().(string); ok && sameUUID(s, uuid) {
			found = append(found, string(path))
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	return dbus.ObjectPath(found[0]), true
}
