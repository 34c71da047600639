package permissions

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestEnsure(t *testing.T) {
	tests := []struct {
		status      Status
		wantErr     bool
		wantRequest bool
	}{
		{Authorized, false, false},
		{NotDetermined, true, true},
		{Denied, true, false},
		{Restricted, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			requested := false
			err := ensure(
				func() Status { return tt.status },
				func() { requested = true },
				zerolog.Nop(),
			)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ensure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMicrophoneDenied) {
				t.Errorf("expected ErrMicrophoneDenied, got %v", err)
			}
			if requested != tt.wantRequest {
				t.Errorf("requested = %v, want %v", requested, tt.wantRequest)
			}
		})
	}
}
