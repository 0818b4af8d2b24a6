package ble

import (
	"errors"
	"testing"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{idleState(), "idle"},
		{scanningState(), "scanning"},
		{connectingState(), "connecting"},
		{readyState(Device{Name: "BLE_CAR"}), "ready(BLE_CAR)"},
		{failedState(errors.New("boom")), "failed(boom)"},
		{State{Kind: StateKind(9)}, "StateKind(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStatusError(t *testing.T) {
	err := newStatusError("connect", mockStatusError{code: 8})
	if err.Code != 8 {
		t.Errorf("Code = %d, want 8", err.Code)
	}
	if got := err.Error(); got != "ble: connect failed (status 8): mock status 8" {
		t.Errorf("Error() = %q", got)
	}

	plain := newStatusError("scan", errors.New("adapter gone"))
	if plain.Code != -1 {
		t.Errorf("Code = %d, want -1", plain.Code)
	}
	if got := plain.Error(); got != "ble: scan failed: adapter gone" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(plain, plain.Err) {
		t.Error("StatusError should unwrap to the driver error")
	}
}

func TestAdapterObjectPath(t *testing.T) {
	tests := map[string]string{
		"":                "/org/bluez/hci0",
		"hci1":            "/org/bluez/hci1",
		"/org/bluez/hci2": "/org/bluez/hci2",
	}
	for in, want := range tests {
		if got := adapterObjectPath(in); got != want {
			t.Errorf("adapterObjectPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath("hci0", "b0:a6:04:5a:91:96")
	if want := "/org/bluez/hci0/dev_B0_A6_04_5A_91_96"; got != want {
		t.Errorf("deviceObjectPath() = %q, want %q", got, want)
	}
}

func TestDefaultTarget(t *testing.T) {
	tgt := DefaultTarget()
	if tgt.Name != "BLE_CAR" || tgt.Address != DefaultTargetAddress {
		t.Errorf("DefaultTarget() = %+v", tgt)
	}
	if !sameUUID(tgt.ServiceUUID, "C6FBDD3C-7123-4C9E-86AB-005F1A7EDA01") {
		t.Errorf("ServiceUUID = %q", tgt.ServiceUUID)
	}
}
