package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// linkSettleTimeout bounds how long Connect waits for a link being closed
// on the same address to report its disconnect.
const linkSettleTimeout = 3 * time.Second

// TinyGoAdapter wraps tinygo-org/bluetooth. On macOS device addresses are
// CoreBluetooth UUIDs rather than MAC addresses; the Address field of Device
// and the configured target address carry that UUID string there.
//
// tinygo does not expose characteristic property flags, so the flags reported
// for each characteristic come from the properties map given to
// NewTinyGoAdapter, keyed by characteristic UUID.
type TinyGoAdapter struct {
	adapter       *bluetooth.Adapter
	properties    map[string]Property
	links         *linkRegistry
	settleTimeout time.Duration
	gatt          gattClient
}

// NewTinyGoAdapter creates an adapter on the default bluetooth adapter.
func NewTinyGoAdapter(properties map[string]Property) *TinyGoAdapter {
	props := make(map[string]Property, len(properties))
	for uuid, p := range properties {
		props[normalizeUUID(uuid)] = p
	}
	return &TinyGoAdapter{
		adapter:       bluetooth.DefaultAdapter,
		properties:    props,
		links:         newLinkRegistry(),
		settleTimeout: linkSettleTimeout,
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo reports peripheral disconnects through the adapter-level
	// connect handler with connected=false.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		if conn := a.links.disconnected(normalizeAddress(device.Address.String())); conn != nil {
			conn.fireDisconnect()
		}
	})
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, found func(Device)) error {
	if ctx.Err() != nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
			Handle:  result.Address,
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, device Device) (Connection, error) {
	addr, ok := device.Handle.(bluetooth.Address)
	if !ok {
		addr.Set(device.Address)
	}
	key := normalizeAddress(device.Address)

	// BlueZ hands back the old link while it is still going down, and its
	// disconnect would then be routed to the new connection.
	if err := a.awaitSettled(ctx, key); err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, err)
	}

	// tinygo's Connect blocks with its own timeout and cannot be cancelled.
	// If ctx ends first, a late successful link is closed by the goroutine.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult)
	go func() {
		d, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		select {
		case ch <- connectResult{d, err}:
		case <-ctx.Done():
			if err == nil {
				a.links.abandon(key)
				_ = d.Disconnect()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", device.Address, result.err)
		}
		conn := &tinyGoConnection{
			adapter: a,
			key:     key,
			device:  result.device,
		}
		a.links.add(key, conn)
		return conn, nil
	}
}

// awaitSettled waits until every link being closed on key has reported its
// disconnect, ctx ends or the settle timeout passes. A timeout is not an
// error: the stale disconnect is still absorbed by the registry.
func (a *TinyGoAdapter) awaitSettled(ctx context.Context, key string) error {
	pending := a.links.pending(key)
	if len(pending) == 0 {
		return nil
	}
	timer := time.NewTimer(a.settleTimeout)
	defer timer.Stop()
	for _, gone := range pending {
		select {
		case <-gone:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	adapter *TinyGoAdapter
	key     string
	device  bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverServices(ctx context.Context) ([]Service, error) {
	type discoverResult struct {
		services []Service
		err      error
	}
	ch := make(chan discoverResult, 1)
	go func() {
		services, err := c.discover()
		ch <- discoverResult{services, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.services, r.err
	}
}

func (c *tinyGoConnection) discover() ([]Service, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	services := make([]Service, 0, len(svcs))
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		s := Service{UUID: svc.UUID().String()}
		for i := range chars {
			uuid := chars[i].UUID().String()
			s.Characteristics = append(s.Characteristics, &tinyGoCharacteristic{
				char:    chars[i],
				uuid:    uuid,
				props:   c.adapter.properties[normalizeUUID(uuid)],
				adapter: c.adapter,
				address: c.key,
			})
		}
		services = append(services, s)
	}
	return services, nil
}

func (c *tinyGoConnection) Disconnect() error {
	c.adapter.links.release(c.key, c)
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinyGoCharacteristic struct {
	char    bluetooth.DeviceCharacteristic
	uuid    string
	props   Property
	adapter *TinyGoAdapter
	address string // normalized device address
}

func (c *tinyGoCharacteristic) UUID() string { return c.uuid }

func (c *tinyGoCharacteristic) Properties() Property { return c.props }

// Write issues one write. Acknowledged writes are platform specific; see
// writeWithResponse.
func (c *tinyGoCharacteristic) Write(data []byte, mode WriteMode) error {
	if mode == WriteWithoutResponse {
		_, err := c.char.WriteWithoutResponse(data)
		return err
	}
	return c.writeWithResponse(data)
}

// linkRegistry routes driver disconnect signals, which carry only the
// device address, to the connection they belong to. A link released by
// Disconnect stays pending until its own disconnect arrives, so that signal
// is absorbed instead of reaching a newer connection to the same address.
type linkRegistry struct {
	mu      sync.Mutex
	active  map[string]*tinyGoConnection
	closing map[string][]chan struct{}
}

func newLinkRegistry() *linkRegistry {
	return &linkRegistry{
		active:  make(map[string]*tinyGoConnection),
		closing: make(map[string][]chan struct{}),
	}
}

func (r *linkRegistry) add(key string, conn *tinyGoConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[key] = conn
}

// release marks conn as going down. It does nothing when conn is no longer
// the active link, since its disconnect was already delivered.
func (r *linkRegistry) release(key string, conn *tinyGoConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] != conn {
		return
	}
	delete(r.active, key)
	r.closing[key] = append(r.closing[key], make(chan struct{}))
}

// abandon registers an untracked link on key that is being torn down.
func (r *linkRegistry) abandon(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closing[key] = append(r.closing[key], make(chan struct{}))
}

// pending returns the channels closed as each link going down on key
// reports its disconnect.
func (r *linkRegistry) pending(key string) []chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chan struct{}(nil), r.closing[key]...)
}

// disconnected consumes one disconnect signal for key. It returns the
// connection to notify, or nil when the signal belonged to a released link.
func (r *linkRegistry) disconnected(key string) *tinyGoConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.closing[key]; len(q) > 0 {
		close(q[0])
		if len(q) == 1 {
			delete(r.closing, key)
		} else {
			r.closing[key] = q[1:]
		}
		return nil
	}
	conn, ok := r.active[key]
	if !ok {
		return nil
	}
	delete(r.active, key)
	return conn
}
