package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/chaz8081/blecar/internal/ble"
	"github.com/chaz8081/blecar/internal/ble/protocol"
	"github.com/chaz8081/blecar/internal/eventlog"
)

type fakeCar struct {
	mu       sync.Mutex
	calls    []string
	sent     []protocol.Intent
	sendErr  error
	state    ble.State
	selected *ble.Device
	devices  []ble.Device
	events   []eventlog.Record
}

func (f *fakeCar) call(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeCar) StartScan()  { f.call("scan") }
func (f *fakeCar) StopScan()   { f.call("stop-scan") }
func (f *fakeCar) Connect()    { f.call("connect") }
func (f *fakeCar) Disconnect() { f.call("disconnect") }
func (f *fakeCar) ClearEvents() {
	f.call("clear")
	f.events = nil
}

func (f *fakeCar) Send(i protocol.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, i)
	return f.sendErr
}

func (f *fakeCar) State() ble.State { return f.state }

func (f *fakeCar) Selected() (ble.Device, bool) {
	if f.selected == nil {
		return ble.Device{}, false
	}
	return *f.selected, true
}

func (f *fakeCar) Discovered() []ble.Device  { return f.devices }
func (f *fakeCar) Events() []eventlog.Record { return f.events }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"scan", command{kind: cmdScan}, false},
		{"  CONNECT ", command{kind: cmdConnect}, false},
		{"send forward", command{kind: cmdSend, intent: protocol.Forward}, false},
		{"send L", command{kind: cmdSend, intent: protocol.Left}, false},
		{"backward", command{kind: cmdSend, intent: protocol.Backward}, false},
		{"s", command{kind: cmdSend, intent: protocol.Stop}, false},
		{"exit", command{kind: cmdQuit}, false},
		{"", command{}, true},
		{"send", command{}, true},
		{"send jump", command{}, true},
		{"scan now", command{}, true},
		{"fly", command{}, true},
		{"forward fast", command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	f := &fakeCar{}
	var out bytes.Buffer

	for _, kind := range []commandKind{cmdScan, cmdStopScan, cmdConnect, cmdDisconnect, cmdClear} {
		if err := execute(f, command{kind: kind}, &out); err != nil {
			t.Fatalf("execute(%v) error = %v", kind, err)
		}
	}
	want := []string{"scan", "stop-scan", "connect", "disconnect", "clear"}
	if strings.Join(f.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", f.calls, want)
	}

	if err := execute(f, command{kind: cmdQuit}, &out); !errors.Is(err, errQuit) {
		t.Errorf("execute(quit) = %v, want errQuit", err)
	}
}

func TestExecuteSendReportsError(t *testing.T) {
	f := &fakeCar{sendErr: ble.ErrNotConnected}
	var out bytes.Buffer

	if err := execute(f, command{kind: cmdSend, intent: protocol.Right}, &out); err != nil {
		t.Fatalf("execute(send) error = %v", err)
	}
	if len(f.sent) != 1 || f.sent[0] != protocol.Right {
		t.Errorf("sent = %v, want [right]", f.sent)
	}
	if !strings.Contains(out.String(), "not connected") {
		t.Errorf("output = %q, want send error", out.String())
	}
}

func TestExecuteState(t *testing.T) {
	dev := ble.Device{Name: "BLE_CAR", Address: "AA:BB:CC:DD:EE:FF"}
	f := &fakeCar{state: ble.State{Kind: ble.Ready, Device: dev}, selected: &dev}
	var out bytes.Buffer

	if err := execute(f, command{kind: cmdState}, &out); err != nil {
		t.Fatalf("execute(state) error = %v", err)
	}
	if !strings.Contains(out.String(), "ready(BLE_CAR)") {
		t.Errorf("output = %q, want ready state", out.String())
	}
	if !strings.Contains(out.String(), "selected: BLE_CAR (AA:BB:CC:DD:EE:FF)") {
		t.Errorf("output = %q, want selected device", out.String())
	}
}

func TestExecuteDevicesAndLog(t *testing.T) {
	f := &fakeCar{
		devices: []ble.Device{{Address: "11:22:33:44:55:66", RSSI: -60}},
		events:  []eventlog.Record{{Message: "scan stopped", Category: eventlog.Info}},
	}
	var out bytes.Buffer

	if err := execute(f, command{kind: cmdDevices}, &out); err != nil {
		t.Fatalf("execute(devices) error = %v", err)
	}
	if !strings.Contains(out.String(), "Unknown") || !strings.Contains(out.String(), "11:22:33:44:55:66") {
		t.Errorf("devices output = %q", out.String())
	}

	out.Reset()
	if err := execute(f, command{kind: cmdLog}, &out); err != nil {
		t.Fatalf("execute(log) error = %v", err)
	}
	if !strings.Contains(out.String(), "[info] scan stopped") {
		t.Errorf("log output = %q", out.String())
	}
}

func TestRunConsole(t *testing.T) {
	f := &fakeCar{}
	var out bytes.Buffer
	in := strings.NewReader("scan\n\nbogus\nconnect\nf\nquit\nscan\n")

	err := runConsole(context.Background(), f, in, &out)
	if !errors.Is(err, errQuit) {
		t.Fatalf("runConsole() = %v, want errQuit", err)
	}
	if strings.Join(f.calls, ",") != "scan,connect" {
		t.Errorf("calls = %v, want [scan connect]", f.calls)
	}
	if len(f.sent) != 1 || f.sent[0] != protocol.Forward {
		t.Errorf("sent = %v, want [forward]", f.sent)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output = %q, want unknown command error", out.String())
	}
}

func TestRunConsoleEOF(t *testing.T) {
	err := runConsole(context.Background(), &fakeCar{}, strings.NewReader("state\n"), &bytes.Buffer{})
	if !errors.Is(err, errQuit) {
		t.Fatalf("runConsole() at EOF = %v, want errQuit", err)
	}
}

func TestRunConsoleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr, pw := io.Pipe()
	defer pw.Close()

	err := runConsole(ctx, &fakeCar{}, pr, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("runConsole() = %v, want context.Canceled", err)
	}
}
