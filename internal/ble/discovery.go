package ble

import "sync"

// FilterOptions configures a discovery Filter.
type FilterOptions struct {
	// AllowReselect disables duplicate-match suppression: every matching
	// observation is reported, not only the first one of a scan session.
	AllowReselect bool
}

// Filter selects the target peripheral out of a stream of scan results.
// Matching is by hardware address only; advertised names are not trusted.
// After the first match the filter latches and ignores further observations
// until Reset.
type Filter struct {
	target string
	opts   FilterOptions

	mu       sync.Mutex
	selected *Device
}

// NewFilter creates a Filter for the given hardware address.
func NewFilter(address string, opts FilterOptions) *Filter {
	return &Filter{target: normalizeAddress(address), opts: opts}
}

// Evaluate returns the device and true when d is the target and nothing has
// been selected yet in this session. Non-matching results are dropped.
func (f *Filter) Evaluate(d Device) (Device, bool) {
	if normalizeAddress(d.Address) != f.target {
		return Device{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected != nil && !f.opts.AllowReselect {
		return Device{}, false
	}
	sel := d
	f.selected = &sel
	return d, true
}

// Selected returns the latched device, if any.
func (f *Filter) Selected() (Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == nil {
		return Device{}, false
	}
	return *f.selected, true
}

// Reset clears the latch for a new scan session.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = nil
}
