package types

import (
	"errors"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		input   string
		want    Window
		wantErr bool
	}{
		{input: "10s", want: Window10s},
		{input: "30s", want: Window30s},
		{input: "60s", want: Window60s},
		{input: "1m", want: Window60s},
		{input: "5m", want: Window5m},
		{input: "", wantErr: true},
		{input: "2h", wantErr: true},
		{input: "10S", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseWindow(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Errorf("ParseWindow(%q) error = %v, want ErrInvalidParameter", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseWindow(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWindowDuration(t *testing.T) {
	if Window5m.Duration() != 5*time.Minute {
		t.Errorf("Window5m.Duration() = %v", Window5m.Duration())
	}
	for i := 1; i < len(AvailableWindows); i++ {
		if AvailableWindows[i] <= AvailableWindows[i-1] {
			t.Errorf("AvailableWindows not ascending at %d", i)
		}
	}
}
