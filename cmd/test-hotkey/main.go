// Command test-hotkey is a manual test for the driving key bindings.
// Run it, then press W/A/S/D or Space to see intents.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode hold|toggle]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/blecar/internal/ble/protocol"
	"github.com/chaz8081/blecar/internal/hotkey"
)

func main() {
	mode := flag.String("mode", "hold", "hotkey mode: hold or toggle")
	flag.Parse()

	bindings := map[protocol.Intent][]string{
		protocol.Forward:  {"w"},
		protocol.Backward: {"s"},
		protocol.Left:     {"a"},
		protocol.Right:    {"d"},
		protocol.Stop:     {"space"},
	}
	fmt.Printf("Listening for W/A/S/D/Space in %q mode...\n", *mode)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(bindings, *mode)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			fmt.Printf(">>> %-8s (%c)\n", ev.Intent, ev.Intent.Code())
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
