package ble

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// mockStatusError is a driver error carrying a platform status code.
type mockStatusError struct {
	code int
}

func (e mockStatusError) Error() string   { return fmt.Sprintf("mock status %d", e.code) }
func (e mockStatusError) StatusCode() int { return e.code }

type mockWrite struct {
	data []byte
	mode WriteMode
}

// mockCharacteristic records writes.
type mockCharacteristic struct {
	uuid  string
	props Property

	mu     sync.Mutex
	writes []mockWrite
	err    error
}

func newMockCharacteristic(uuid string, props Property) *mockCharacteristic {
	return &mockCharacteristic{uuid: uuid, props: props}
}

func (c *mockCharacteristic) UUID() string         { return c.uuid }
func (c *mockCharacteristic) Properties() Property { return c.props }

func (c *mockCharacteristic) Write(data []byte, mode WriteMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, mockWrite{data: cp, mode: mode})
	return c.err
}

func (c *mockCharacteristic) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *mockCharacteristic) recorded() []mockWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mockWrite, len(c.writes))
	copy(out, c.writes)
	return out
}

// mockConnection simulates a link to the car.
type mockConnection struct {
	services    []Service
	discoverErr error
	// discoverGate, when set, holds DiscoverServices until closed.
	discoverGate chan struct{}

	mu           sync.Mutex
	disconnectCb func()
	disconnects  int
}

func (c *mockConnection) DiscoverServices(ctx context.Context) ([]Service, error) {
	if c.discoverGate != nil {
		select {
		case <-c.discoverGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.services, c.discoverErr
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// mockAdapter simulates the BLE adapter. Scan reports the configured
// observations, then either fails with scanErr or blocks until cancelled.
type mockAdapter struct {
	mu           sync.Mutex
	enableErr    error
	observations []Device
	scanErr      error
	scanCalls    int
	scanStops    int
	delivered    int

	connectErr  error
	connectGate chan struct{} // holds Connect until closed, ignoring ctx
	connects    int
	newConn     func() *mockConnection
	conns       []*mockConnection

	writeChar *mockCharacteristic
}

// newMockAdapter returns an adapter whose connections expose service "U1"
// with a writable "U2" and a notify-only "U3".
func newMockAdapter(observations ...Device) *mockAdapter {
	a := &mockAdapter{
		observations: observations,
		writeChar:    newMockCharacteristic("U2", PropWrite|PropWriteWithoutResponse),
	}
	a.newConn = func() *mockConnection {
		return &mockConnection{
			services: []Service{
				{UUID: "180A"},
				{UUID: "U1", Characteristics: []Characteristic{
					a.writeChar,
					newMockCharacteristic("U3", PropRead|PropNotify),
				}},
			},
		}
	}
	return a
}

func (a *mockAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableErr
}

func (a *mockAdapter) Scan(ctx context.Context, found func(Device)) error {
	a.mu.Lock()
	a.scanCalls++
	observations := append([]Device(nil), a.observations...)
	scanErr := a.scanErr
	a.mu.Unlock()

	for _, d := range observations {
		found(d)
		a.mu.Lock()
		a.delivered++
		a.mu.Unlock()
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	a.mu.Lock()
	a.scanStops++
	a.mu.Unlock()
	return nil
}

func (a *mockAdapter) Connect(_ context.Context, _ Device) (Connection, error) {
	a.mu.Lock()
	a.connects++
	gate := a.connectGate
	err := a.connectErr
	conn := a.newConn()
	a.conns = append(a.conns, conn)
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *mockAdapter) set(fn func(a *mockAdapter)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

func (a *mockAdapter) counts() (scanCalls, scanStops, delivered, connects int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCalls, a.scanStops, a.delivered, a.connects
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conns) == 0 {
		return nil
	}
	return a.conns[len(a.conns)-1]
}

func (a *mockAdapter) connection(i int) *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conns[i]
}

// mockRadio reports a fixed power state.
type mockRadio struct {
	powered bool
	err     error
}

func (r mockRadio) Powered() (bool, error) { return r.powered, r.err }

// gatedRadio blocks Powered until gate is closed.
type gatedRadio struct {
	gate    chan struct{}
	entered chan struct{}
}

func (r *gatedRadio) Powered() (bool, error) {
	r.entered <- struct{}{}
	<-r.gate
	return true, nil
}

// switchRadio reports a power state that tests can change.
type switchRadio struct {
	mu      sync.Mutex
	powered bool
}

func (r *switchRadio) set(powered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.powered = powered
}

func (r *switchRadio) Powered() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered, nil
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}
