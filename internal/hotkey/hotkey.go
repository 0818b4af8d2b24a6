// Package hotkey drives the car from global key combos using gohook.
// It supports "hold" mode (hold a key to move, release to stop) and
// "toggle" mode (press to move, press the same key again to stop).
package hotkey

import (
	"sort"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/chaz8081/blecar/internal/ble/protocol"
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Intent protocol.Intent
}

// Listener manages the driving key bindings and emits intent events.
type Listener struct {
	bindings map[protocol.Intent][]string
	mode     string // "hold" or "toggle"
	ch       chan Event
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	state driveState
}

// NewListener creates a Listener for the given bindings and mode.
// Key names should be lowercase (e.g., ["ctrl", "w"]).
// mode must be "hold" or "toggle".
func NewListener(bindings map[protocol.Intent][]string, mode string) *Listener {
	return &Listener{
		bindings: bindings,
		mode:     mode,
		ch:       make(chan Event, 16),
		done:     make(chan struct{}),
		state:    driveState{active: protocol.Stop},
	}
}

// Events returns the channel that receives intent events.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global key bindings.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, intent := range l.sortedIntents() {
		keys := l.bindings[intent]
		hook.Register(hook.KeyDown, keys, func(e hook.Event) {
			l.mu.Lock()
			next, ok := l.state.press(intent, l.mode)
			l.mu.Unlock()
			if ok {
				l.emit(next)
			}
		})
		if l.mode != "toggle" {
			hook.Register(hook.KeyUp, keys, func(e hook.Event) {
				l.mu.Lock()
				next, ok := l.state.release(intent)
				l.mu.Unlock()
				if ok {
					l.emit(next)
				}
			})
		}
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

func (l *Listener) emit(intent protocol.Intent) {
	select {
	case l.ch <- Event{Intent: intent}:
	default: // don't block if channel is full
	}
}

// sortedIntents gives a stable registration order.
func (l *Listener) sortedIntents() []protocol.Intent {
	intents := make([]protocol.Intent, 0, len(l.bindings))
	for intent := range l.bindings {
		intents = append(intents, intent)
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })
	return intents
}

// driveState tracks the motion intent currently in effect and decides which
// intent, if any, a key transition produces.
type driveState struct {
	active protocol.Intent
}

// press handles a key-down for intent. Key repeat of the active intent is
// swallowed in hold mode and stops the car in toggle mode.
func (s *driveState) press(intent protocol.Intent, mode string) (protocol.Intent, bool) {
	if intent == protocol.Stop {
		s.active = protocol.Stop
		return protocol.Stop, true
	}
	if intent == s.active {
		if mode == "toggle" {
			s.active = protocol.Stop
			return protocol.Stop, true
		}
		return 0, false
	}
	s.active = intent
	return intent, true
}

// release handles a key-up for intent in hold mode. Releasing a key that is
// no longer the active one does nothing, so rolling from one key to another
// does not stop the car.
func (s *driveState) release(intent protocol.Intent) (protocol.Intent, bool) {
	if intent == protocol.Stop || intent != s.active {
		return 0, false
	}
	s.active = protocol.Stop
	return protocol.Stop, true
}
