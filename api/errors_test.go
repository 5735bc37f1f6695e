package api_test

import (
	"errors"
	"testing"

	"github.com/momentics/wscore/api"
)

func TestValidCloseCode(t *testing.T) {
	valid := []uint16{1000, 1001, 1002, 1003, 1007, 1008, 1009, 1010, 1011, 3000, 4999}
	for _, c := range valid {
		if !api.ValidCloseCode(c) {
			t.Errorf("ValidCloseCode(%d) = false, want true", c)
		}
	}
	invalid := []uint16{999, 1004, 1005, 1006, 1012, 1015, 2999, 5000}
	for _, c := range invalid {
		if api.ValidCloseCode(c) {
			t.Errorf("ValidCloseCode(%d) = true, want false", c)
		}
	}
}

func TestErrorUnwrapMatchesSentinel(t *testing.T) {
	err := api.NewProtocolError("bad frame")
	if !errors.Is(err, api.ErrProtocolError) {
		t.Error("NewProtocolError does not unwrap to ErrProtocolError")
	}
	if err.CloseCode != api.CloseProtocolError {
		t.Errorf("CloseCode = %d, want %d", err.CloseCode, api.CloseProtocolError)
	}
}

func TestErrorWithContext(t *testing.T) {
	err := api.NewRecvShort("short read").WithContext("n", 4)
	if err.Context["n"] != 4 {
		t.Errorf("Context[n] = %v, want 4", err.Context["n"])
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestIsValidOpcode(t *testing.T) {
	for _, op := range []byte{0x0, 0x1, 0x2, 0x8, 0x9, 0xA} {
		if !api.IsValidOpcode(op) {
			t.Errorf("IsValidOpcode(%#x) = false, want true", op)
		}
	}
	for _, op := range []byte{0x3, 0x7, 0xB, 0xF} {
		if api.IsValidOpcode(op) {
			t.Errorf("IsValidOpcode(%#x) = true, want false", op)
		}
	}
}
