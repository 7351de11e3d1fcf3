package servo

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Mode(t *testing.T) {
	tests := []struct {
		name     string
		opts     PortOptions
		wantBaud int
		wantErr  bool
	}{
		{name: "default", opts: PortOptions{}, wantBaud: DefaultBaudRate},
		{name: "fast", opts: PortOptions{BaudRate: 115200}, wantBaud: 115200},
		{name: "controller max", opts: PortOptions{BaudRate: 200000}, wantBaud: 200000},
		{name: "non standard", opts: PortOptions{BaudRate: 12345}, wantErr: true},
		{name: "too slow", opts: PortOptions{BaudRate: 300}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, err := tc.opts.Mode()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Mode() = %+v, want error", mode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Mode() error = %v", err)
			}
			if mode.BaudRate != tc.wantBaud {
				t.Errorf("BaudRate = %d, want %d", mode.BaudRate, tc.wantBaud)
			}
			if mode.DataBits != 8 || mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
				t.Errorf("framing = %+v, want 8N1", mode)
			}
		})
	}
}

func TestPortOptions_Defaults(t *testing.T) {
	got := PortOptions{}.withDefaults()
	if got.BaudRate != DefaultBaudRate || got.ReadTimeout != DefaultReadTimeout {
		t.Errorf("withDefaults() = %+v", got)
	}
	if kept := (PortOptions{ReadTimeout: 1}).withDefaults(); kept.ReadTimeout != 1 {
		t.Errorf("explicit ReadTimeout replaced: %v", kept.ReadTimeout)
	}
}
