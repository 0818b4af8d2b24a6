package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/blecar/internal/ble/protocol"
	"github.com/chaz8081/blecar/internal/eventlog"
)

// Options configures the Controller.
type Options struct {
	Target      Target
	ScanTimeout time.Duration // scan window before the radio is released (default 500ms)
	// KeepScanning leaves the scan running after the target is selected,
	// so the discovered list keeps filling until the window elapses.
	KeepScanning bool
	Filter       FilterOptions
	LogCapacity  int        // event log size (default 100)
	Radio        RadioProbe // optional power check before using the radio
	Clock        func() time.Time
	OnEvent      func(eventlog.Record) // called for every event log record
}

// DefaultOptions returns the settings of the stock BLE_CAR firmware.
func DefaultOptions() Options {
	return Options{
		Target:      DefaultTarget(),
		ScanTimeout: 500 * time.Millisecond,
		LogCapacity: eventlog.DefaultCapacity,
	}
}

// Controller owns the connection lifecycle for one peripheral. All state
// transitions run on a single goroutine that drains an inbox of user
// requests and driver notifications; the exported request methods only
// enqueue and never wait on hardware.
type Controller struct {
	adapter Adapter
	opts    Options
	filter  *Filter
	events  *eventlog.Log

	inbox     chan message
	done      chan struct{}
	closeOnce sync.Once
	postMu    sync.RWMutex
	closed    bool

	// mu guards the observer snapshot below. Only the run goroutine writes.
	mu         sync.RWMutex
	state      State
	selected   *Device
	discovered []Device

	// radioMu serializes the radio check run by scan and connect goroutines.
	radioMu sync.Mutex
	enabled bool

	// Owned by the run goroutine.
	session      uuid.UUID // current scan session, uuid.Nil when not scanning
	cancelScan   context.CancelFunc
	scanTimer    *time.Timer
	attempt      uint64 // current connection attempt
	attemptCtx   context.Context
	abortAttempt context.CancelFunc
	link         linkSlot
	handle       *Handle
}

// NewController validates opts and starts the controller in Idle.
func NewController(adapter Adapter, opts Options) (*Controller, error) {
	if adapter == nil {
		return nil, errors.New("ble: adapter must not be nil")
	}
	if opts.Target.Address == "" {
		return nil, errors.New("ble: target address must not be empty")
	}
	if opts.Target.ServiceUUID == "" || opts.Target.WriteCharUUID == "" {
		return nil, errors.New("ble: target service and write characteristic UUIDs must not be empty")
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 500 * time.Millisecond
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = eventlog.DefaultCapacity
	}

	logOpts := []eventlog.Option{}
	if opts.Clock != nil {
		logOpts = append(logOpts, eventlog.WithClock(opts.Clock))
	}
	if opts.OnEvent != nil {
		logOpts = append(logOpts, eventlog.WithObserver(opts.OnEvent))
	}

	c := &Controller{
		adapter: adapter,
		opts:    opts,
		filter:  NewFilter(opts.Target.Address, opts.Filter),
		events:  eventlog.New(opts.LogCapacity, logOpts...),
		inbox:   make(chan message, 64),
		done:    make(chan struct{}),
		state:   idleState(),
	}
	go c.run()
	c.record(eventlog.Info, "controller started")
	return c, nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Selected returns the device chosen by the last scan, if any.
func (c *Controller) Selected() (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return Device{}, false
	}
	return *c.selected, true
}

// Discovered returns the distinct devices observed in the current scan session.
func (c *Controller) Discovered() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, len(c.discovered))
	copy(out, c.discovered)
	return out
}

// Events returns the event log, newest first.
func (c *Controller) Events() []eventlog.Record {
	return c.events.Entries()
}

// ClearEvents empties the event log.
func (c *Controller) ClearEvents() {
	c.events.Clear()
}

// StartScan begins a scan session. The scan ends on a target match, on
// StopScan or when the scan window elapses.
func (c *Controller) StartScan() { c.post(startScanReq{}) }

// StopScan ends an active scan. It is a no-op when not scanning.
func (c *Controller) StopScan() { c.post(stopScanReq{}) }

// Connect opens a link to the selected device, closing any previous link first.
func (c *Controller) Connect() { c.post(connectReq{}) }

// Disconnect closes the link. It is a no-op when not connected.
func (c *Controller) Disconnect() { c.post(disconnectReq{}) }

// Send queues one command write. It returns ErrNotConnected unless the
// controller is Ready, and ErrClosed after Close; the write outcome is
// reported in the event log.
func (c *Controller) Send(intent protocol.Intent) error {
	reply := make(chan error, 1)
	if !c.post(sendReq{intent: intent, reply: reply}) {
		c.reject(ErrClosed, "not connected: controller closed")
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		// Answered either by the last dispatch or by drain.
		return <-reply
	}
}

// Close stops any scan, closes the link and stops the controller.
// Requests made afterwards are ignored.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.post(closeReq{})
	})
	<-c.done
	return nil
}

// post delivers m to the run goroutine. It reports false once the
// controller has been closed.
func (c *Controller) post(m message) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

// barrier waits until every message posted before it has been handled.
func (c *Controller) barrier() {
	ack := make(chan struct{})
	if c.post(syncReq{ack: ack}) {
		<-ack
	}
}

func (c *Controller) run() {
	for m := range c.inbox {
		if c.dispatch(m) {
			break
		}
	}
	// Unblock pending posters first, then refuse new posts and answer
	// whatever made it into the inbox.
	close(c.done)
	c.postMu.Lock()
	c.closed = true
	c.postMu.Unlock()
	c.drain()
}

// drain releases resources carried by messages that arrived after teardown.
func (c *Controller) drain() {
	for {
		select {
		case m := <-c.inbox:
			switch m := m.(type) {
			case linkResultMsg:
				if m.conn != nil {
					_ = m.conn.Disconnect()
				}
			case sendReq:
				c.reject(ErrClosed, "not connected: controller closed")
				m.reply <- ErrClosed
			case syncReq:
				close(m.ack)
			}
		default:
			return
		}
	}
}

// dispatch handles one message and reports whether the controller stopped.
func (c *Controller) dispatch(m message) bool {
	switch m := m.(type) {
	case startScanReq:
		c.startScan()
	case stopScanReq:
		if c.current().Kind == Scanning {
			c.endScan("scan stopped")
		}
	case connectReq:
		c.connect()
	case disconnectReq:
		c.disconnect()
	case sendReq:
		m.reply <- c.send(m.intent)
	case syncReq:
		close(m.ack)
	case closeReq:
		c.teardown()
		return true
	case scanResultMsg:
		c.onScanResult(m)
	case scanTimeoutMsg:
		if m.session == c.session && c.current().Kind == Scanning {
			c.endScan("scan stopped (timeout)")
		}
	case scanEndedMsg:
		c.onScanEnded(m)
	case linkResultMsg:
		c.onLinkResult(m)
	case discoveredMsg:
		c.onDiscovered(m)
	case linkLostMsg:
		c.onLinkLost(m)
	case writeResultMsg:
		c.onWriteResult(m)
	default:
		slog.Warn("[BLE] unknown controller message", "type", fmt.Sprintf("%T", m))
	}
	return false
}

func (c *Controller) startScan() {
	switch c.current().Kind {
	case Scanning:
		return
	case Connecting, Ready:
		c.reject(ErrBusy, "cannot scan while connected")
		return
	}

	c.filter.Reset()
	session := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	c.session = session
	c.cancelScan = cancel
	c.scanTimer = time.AfterFunc(c.opts.ScanTimeout, func() {
		c.post(scanTimeoutMsg{session: session})
	})

	c.mu.Lock()
	c.discovered = nil
	c.selected = nil
	c.state = scanningState()
	c.mu.Unlock()
	c.record(eventlog.Info, "scanning for BLE devices...")
	slog.Debug("[BLE] scan session started", "session", session, "window", c.opts.ScanTimeout)

	go func() {
		if err := c.radioReady(); err != nil {
			c.post(scanEndedMsg{session: session, err: err})
			return
		}
		err := c.adapter.Scan(ctx, func(d Device) {
			c.post(scanResultMsg{session: session, device: d})
		})
		c.post(scanEndedMsg{session: session, err: err})
	}()
}

// stopScanning releases the radio and forgets the session without
// touching the state.
func (c *Controller) stopScanning() {
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
	if c.cancelScan != nil {
		c.cancelScan()
		c.cancelScan = nil
	}
	c.session = uuid.Nil
}

func (c *Controller) endScan(msg string) {
	c.stopScanning()
	c.setState(idleState())
	c.record(eventlog.Info, msg)
}

func (c *Controller) onScanResult(m scanResultMsg) {
	if m.session != c.session || c.current().Kind != Scanning {
		return
	}
	c.remember(m.device)

	dev, ok := c.filter.Evaluate(m.device)
	if !ok {
		return
	}
	if dev.Name == "" {
		dev.Name = c.opts.Target.Name
	}
	if dev.Name == "" {
		dev.Name = "Unknown"
	}
	c.mu.Lock()
	c.selected = &dev
	c.mu.Unlock()
	c.record(eventlog.Info, fmt.Sprintf("selected device: %s (%s)", dev.Name, dev.Address))

	if !c.opts.KeepScanning {
		c.endScan("scan stopped")
	}
}

func (c *Controller) onScanEnded(m scanEndedMsg) {
	if m.session != c.session || c.current().Kind != Scanning {
		return
	}
	if errors.Is(m.err, ErrRadioDisabled) {
		c.stopScanning()
		c.fail(m.err, "bluetooth is disabled")
		return
	}
	if m.err != nil {
		c.stopScanning()
		err := newStatusError("scan", m.err)
		c.fail(err, fmt.Sprintf("scan failed: %v", statusText(err)))
		return
	}
	c.endScan("scan stopped")
}

// remember records d in the discovered list once per address.
func (c *Controller) remember(d Device) {
	addr := normalizeAddress(d.Address)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seen := range c.discovered {
		if normalizeAddress(seen.Address) == addr {
			return
		}
	}
	c.discovered = append(c.discovered, d)
}

func (c *Controller) connect() {
	dev, ok := c.Selected()
	if !ok {
		c.reject(ErrNoDeviceSelected, "no device selected")
		return
	}

	switch c.current().Kind {
	case Scanning:
		c.stopScanning()
	case Connecting, Ready:
		c.releaseLink()
	}

	c.attempt++
	attempt := c.attempt
	ctx, cancel := context.WithCancel(context.Background())
	c.attemptCtx = ctx
	c.abortAttempt = cancel

	c.setState(connectingState())
	c.record(eventlog.Info, fmt.Sprintf("connecting to %s...", dev.Name))

	go func() {
		if err := c.radioReady(); err != nil {
			c.post(linkResultMsg{attempt: attempt, err: err})
			return
		}
		conn, err := c.adapter.Connect(ctx, dev)
		if !c.post(linkResultMsg{attempt: attempt, conn: conn, err: err}) && conn != nil {
			// Controller closed while the link was opening.
			_ = conn.Disconnect()
		}
	}()
}

func (c *Controller) onLinkResult(m linkResultMsg) {
	if m.attempt != c.attempt || c.current().Kind != Connecting {
		if m.conn != nil {
			slog.Debug("[BLE] closing stale link", "attempt", m.attempt)
			_ = m.conn.Disconnect()
		}
		return
	}
	if errors.Is(m.err, ErrRadioDisabled) {
		c.failConnection(m.err, "bluetooth is disabled")
		return
	}
	if m.err != nil {
		err := newStatusError("connect", m.err)
		c.failConnection(err, fmt.Sprintf("connection failed: %v", statusText(err)))
		return
	}
	if m.conn == nil {
		c.failConnection(ErrLinkLost, "connection failed: no link")
		return
	}

	if err := c.link.replace(m.conn); err != nil {
		slog.Warn("[BLE] closing previous link", "error", err)
	}
	attempt := m.attempt
	m.conn.OnDisconnect(func() {
		// The driver may call back from inside Disconnect, which the run
		// goroutine itself invokes.
		go c.post(linkLostMsg{attempt: attempt})
	})
	c.record(eventlog.Success, "link established")

	conn, ctx := m.conn, c.attemptCtx
	go func() {
		services, err := conn.DiscoverServices(ctx)
		c.post(discoveredMsg{attempt: attempt, services: services, err: err})
	}()
}

func (c *Controller) onDiscovered(m discoveredMsg) {
	if m.attempt != c.attempt || c.current().Kind != Connecting {
		return
	}
	if m.err != nil {
		err := newStatusError("discover services", m.err)
		c.failConnection(err, fmt.Sprintf("service discovery failed: %v", statusText(err)))
		return
	}

	h, err := resolve(m.services, c.opts.Target)
	switch {
	case errors.Is(err, ErrServiceNotFound):
		c.failConnection(err, "UART service not found")
		return
	case errors.Is(err, ErrCharacteristicNotFound):
		c.failConnection(err, "write characteristic not found")
		return
	case err != nil:
		c.failConnection(err, err.Error())
		return
	}

	dev, _ := c.Selected()
	c.handle = h
	c.setState(readyState(dev))
	c.record(eventlog.Success, fmt.Sprintf("UART service found, connected to %s", dev.Name))
	slog.Debug("[BLE] write mode negotiated", "mode", h.Mode())
}

func (c *Controller) onLinkLost(m linkLostMsg) {
	if m.attempt != c.attempt {
		return
	}
	switch c.current().Kind {
	case Ready:
		c.releaseLink()
		c.setState(idleState())
		c.record(eventlog.Info, "device disconnected")
	case Connecting:
		c.failConnection(ErrLinkLost, "connection lost")
	}
}

func (c *Controller) disconnect() {
	switch c.current().Kind {
	case Ready, Connecting:
		c.releaseLink()
		c.setState(idleState())
		c.record(eventlog.Info, "disconnected")
	}
}

func (c *Controller) send(intent protocol.Intent) error {
	if c.current().Kind != Ready || c.handle == nil {
		c.reject(ErrNotConnected, "not connected")
		return ErrNotConnected
	}
	h, attempt := c.handle, c.attempt
	go func() {
		err := h.Send(intent)
		c.post(writeResultMsg{attempt: attempt, intent: intent, err: err})
	}()
	return nil
}

func (c *Controller) onWriteResult(m writeResultMsg) {
	if m.attempt != c.attempt || c.current().Kind != Ready {
		return
	}
	if m.err != nil {
		// A failed write does not imply the link is gone.
		c.reject(m.err, fmt.Sprintf("command %c failed: %v", m.intent.Code(), statusText(m.err)))
		return
	}
	c.record(eventlog.Command, fmt.Sprintf("command: %c", m.intent.Code()))
}

func (c *Controller) teardown() {
	if c.current().Kind == Scanning {
		c.stopScanning()
	}
	c.releaseLink()
	c.setState(idleState())
	c.record(eventlog.Info, "controller closed")
}

// releaseLink invalidates the transport handle, aborts a pending connection
// attempt and closes the open link.
func (c *Controller) releaseLink() {
	c.handle = nil
	if c.abortAttempt != nil {
		c.abortAttempt()
		c.abortAttempt = nil
	}
	if err := c.link.close(); err != nil {
		slog.Warn("[BLE] close link", "error", err)
	}
}

func (c *Controller) failConnection(err error, msg string) {
	c.releaseLink()
	c.fail(err, msg)
}

func (c *Controller) fail(err error, msg string) {
	c.setState(failedState(err))
	c.reject(err, msg)
}

// radioReady checks the radio power state and enables the adapter once.
// It talks to hardware and runs off the run goroutine.
func (c *Controller) radioReady() error {
	c.radioMu.Lock()
	defer c.radioMu.Unlock()
	if c.opts.Radio != nil {
		powered, err := c.opts.Radio.Powered()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRadioDisabled, err)
		}
		if !powered {
			return ErrRadioDisabled
		}
	}
	if !c.enabled {
		if err := c.adapter.Enable(); err != nil {
			return fmt.Errorf("%w: %v", ErrRadioDisabled, err)
		}
		c.enabled = true
	}
	return nil
}

func (c *Controller) current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	slog.Debug("[BLE] state", "from", prev.Kind, "to", s.String())
}

// record appends to the event log and mirrors the entry to slog.
func (c *Controller) record(cat eventlog.Category, msg string) {
	c.events.Append(msg, cat)
	slog.Info("[BLE] "+msg, "category", cat)
}

// reject records an error event carrying err.
func (c *Controller) reject(err error, msg string) {
	c.events.AppendError(msg, err)
	slog.Warn("[BLE] "+msg, "error", err)
}

// statusText renders a driver error for the event log, preferring the status code.
func statusText(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code >= 0 {
			return fmt.Sprintf("status %d", se.Code)
		}
		return se.Err.Error()
	}
	return err.Error()
}

// linkSlot holds the single open link. Installing a link always closes the
// previous one.
type linkSlot struct {
	conn Connection
}

// replace installs conn and closes the previous occupant.
func (s *linkSlot) replace(conn Connection) error {
	prev := s.conn
	s.conn = conn
	if prev != nil && prev != conn {
		return prev.Disconnect()
	}
	return nil
}

// take empties the slot and returns its occupant.
func (s *linkSlot) take() Connection {
	conn := s.conn
	s.conn = nil
	return conn
}

// close empties the slot and closes its occupant.
func (s *linkSlot) close() error {
	if conn := s.take(); conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// message is anything the run goroutine handles.
type message any

type (
	startScanReq  struct{}
	stopScanReq   struct{}
	connectReq    struct{}
	disconnectReq struct{}
	closeReq      struct{}
	sendReq       struct {
		intent protocol.Intent
		reply  chan error
	}
	syncReq struct {
		ack chan struct{}
	}

	scanResultMsg struct {
		session uuid.UUID
		device  Device
	}
	scanTimeoutMsg struct {
		session uuid.UUID
	}
	scanEndedMsg struct {
		session uuid.UUID
		err     error
	}
	linkResultMsg struct {
		attempt uint64
		conn    Connection
		err     error
	}
	discoveredMsg struct {
		attempt  uint64
		services []Service
		err      error
	}
	linkLostMsg struct {
		attempt uint64
	}
	writeResultMsg struct {
		attempt uint64
		intent  protocol.Intent
		err     error
	}
)
