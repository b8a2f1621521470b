package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	coded := New(Disconnected, "mqtt: client not connected")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil is success", err: nil, want: Success},
		{name: "coded error", err: coded, want: Disconnected},
		{name: "wrapped coded error", err: fmt.Errorf("publishing: %w", coded), want: Disconnected},
		{name: "plain error", err: errors.New("boom"), want: Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.err); got != tt.want {
				t.Errorf("Of() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_String(t *testing.T) {
	if got := InvalidParameter.String(); got != "invalid_parameter" {
		t.Errorf("String() = %q, want invalid_parameter", got)
	}
	if got := Code(-42).String(); got != "code(-42)" {
		t.Errorf("String() = %q, want code(-42)", got)
	}
}
