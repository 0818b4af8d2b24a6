package protocol

import (
	"bytes"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		intent Intent
		want   []byte
	}{
		{Forward, []byte("F")},
		{Backward, []byte("B")},
		{Left, []byte("L")},
		{Right, []byte("R")},
		{Stop, []byte("S")},
	}

	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			got := Encode(tt.intent)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%v) = %q, want %q", tt.intent, got, tt.want)
			}
		})
	}
}

func TestEncodeIsSingleByte(t *testing.T) {
	for _, i := range Intents() {
		if n := len(Encode(i)); n != 1 {
			t.Errorf("Encode(%v) produced %d bytes, want 1", i, n)
		}
	}
}

func TestEncodeOutOfRangeIsStop(t *testing.T) {
	got := Encode(Intent(42))
	if !bytes.Equal(got, []byte("S")) {
		t.Errorf("Encode(42) = %q, want %q", got, "S")
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in      string
		want    Intent
		wantErr bool
	}{
		{in: "forward", want: Forward},
		{in: "FORWARD", want: Forward},
		{in: "b", want: Backward},
		{in: " L ", want: Left},
		{in: "right", want: Right},
		{in: "S", want: Stop},
		{in: "jump", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseIntent(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIntent(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseIntent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIntentString(t *testing.T) {
	if got := Intent(-1).String(); got != "Intent(-1)" {
		t.Errorf("Intent(-1).String() = %q", got)
	}
	if got := Right.String(); got != "right" {
		t.Errorf("Right.String() = %q, want %q", got, "right")
	}
}
