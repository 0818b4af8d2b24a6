package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chaz8081/blecar/internal/ble"
	"github.com/chaz8081/blecar/internal/ble/protocol"
	"github.com/chaz8081/blecar/internal/eventlog"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// car is the part of *ble.Controller the console drives.
type car interface {
	StartScan()
	StopScan()
	Connect()
	Disconnect()
	Send(protocol.Intent) error
	State() ble.State
	Selected() (ble.Device, bool)
	Discovered() []ble.Device
	Events() []eventlog.Record
	ClearEvents()
}

type commandKind int

const (
	cmdScan commandKind = iota
	cmdStopScan
	cmdConnect
	cmdDisconnect
	cmdSend
	cmdState
	cmdDevices
	cmdLog
	cmdClear
	cmdHelp
	cmdQuit
)

type command struct {
	kind   commandKind
	intent protocol.Intent
}

var commandNames = map[string]commandKind{
	"scan":       cmdScan,
	"stop-scan":  cmdStopScan,
	"connect":    cmdConnect,
	"disconnect": cmdDisconnect,
	"send":       cmdSend,
	"state":      cmdState,
	"devices":    cmdDevices,
	"log":        cmdLog,
	"clear":      cmdClear,
	"help":       cmdHelp,
	"quit":       cmdQuit,
	"exit":       cmdQuit,
}

// parseCommand parses one console line. A bare intent name or code
// ("forward", "f") is shorthand for "send <intent>".
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}

	kind, ok := commandNames[fields[0]]
	if !ok {
		intent, err := protocol.ParseIntent(fields[0])
		if err != nil || len(fields) > 1 {
			return command{}, fmt.Errorf("unknown command %q (try \"help\")", fields[0])
		}
		return command{kind: cmdSend, intent: intent}, nil
	}

	if kind == cmdSend {
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: send forward|backward|left|right|stop")
		}
		intent, err := protocol.ParseIntent(fields[1])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdSend, intent: intent}, nil
	}
	if len(fields) > 1 {
		return command{}, fmt.Errorf("%s takes no arguments", fields[0])
	}
	return command{kind: kind}, nil
}

// execute runs cmd against c, writing any output to w. It returns errQuit
// for the quit command.
func execute(c car, cmd command, w io.Writer) error {
	switch cmd.kind {
	case cmdScan:
		c.StartScan()
	case cmdStopScan:
		c.StopScan()
	case cmdConnect:
		c.Connect()
	case cmdDisconnect:
		c.Disconnect()
	case cmdSend:
		if err := c.Send(cmd.intent); err != nil {
			fmt.Fprintf(w, "send %s: %v\n", cmd.intent, err)
		}
	case cmdState:
		fmt.Fprintf(w, "state: %s\n", c.State())
		if d, ok := c.Selected(); ok {
			fmt.Fprintf(w, "selected: %s (%s)\n", d.Name, d.Address)
		}
	case cmdDevices:
		devices := c.Discovered()
		if len(devices) == 0 {
			fmt.Fprintln(w, "no devices discovered")
		}
		for _, d := range devices {
			name := d.Name
			if name == "" {
				name = "Unknown"
			}
			fmt.Fprintf(w, "  %-20s %s  %d dBm\n", name, d.Address, d.RSSI)
		}
	case cmdLog:
		for _, r := range c.Events() {
			fmt.Fprintln(w, r.Format())
		}
	case cmdClear:
		c.ClearEvents()
	case cmdHelp:
		printHelp(w)
	case cmdQuit:
		return errQuit
	}
	return nil
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  scan              scan for the car")
	fmt.Fprintln(w, "  stop-scan         stop scanning")
	fmt.Fprintln(w, "  connect           connect to the selected car")
	fmt.Fprintln(w, "  disconnect        close the link")
	fmt.Fprintln(w, "  send <intent>     forward|backward|left|right|stop (or f/b/l/r/s)")
	fmt.Fprintln(w, "  state             show the connection state")
	fmt.Fprintln(w, "  devices           list devices seen by the last scan")
	fmt.Fprintln(w, "  log               show the event log, newest first")
	fmt.Fprintln(w, "  clear             clear the event log")
	fmt.Fprintln(w, "  quit              exit")
}
