// Command test-scan is a manual test for BLE discovery.
// It scans for a few seconds, prints every advertiser and reports whether
// the configured car was seen.
//
// Usage:
//
//	go run ./cmd/test-scan [--address B0:A6:04:5A:91:96] [--duration 5s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/blecar/internal/ble"
)

func main() {
	address := flag.String("address", ble.DefaultTargetAddress, "target car address")
	duration := flag.Duration("duration", 5*time.Second, "how long to scan")
	flag.Parse()

	adapter := ble.NewTinyGoAdapter(nil)
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: enabling adapter: %v\n", err)
		os.Exit(1)
	}

	filter := ble.NewFilter(*address, ble.FilterOptions{})
	var mu sync.Mutex
	seen := make(map[string]ble.Device)

	fmt.Printf("Scanning for %s...\n", *duration)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	err := adapter.Scan(ctx, func(d ble.Device) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[d.Address]; !ok {
			seen[d.Address] = d
		}
		if dev, ok := filter.Evaluate(d); ok {
			fmt.Printf("Target found: %s (%s) %d dBm\n", dev.Name, dev.Address, dev.RSSI)
		}
	})
	if err != nil {
		fmt.Printf("Error: scan: %v\n", err)
		os.Exit(1)
	}

	mu.Lock()
	defer mu.Unlock()
	addrs := make([]string, 0, len(seen))
	for addr := range seen {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	fmt.Printf("\n%d device(s):\n", len(addrs))
	for _, addr := range addrs {
		d := seen[addr]
		name := d.Name
		if name == "" {
			name = "Unknown"
		}
		fmt.Printf("  %-20s %s  %d dBm\n", name, addr, d.RSSI)
	}

	if _, ok := filter.Selected(); !ok {
		fmt.Printf("\nTarget %s not seen.\n", strings.ToUpper(*address))
		os.Exit(2)
	}
	fmt.Println("\nDone!")
}
