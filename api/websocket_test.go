package api_test

import (
	"testing"

	"github.com/momentics/wscore/api"
)

func TestPayloadConstructors(t *testing.T) {
	txt := api.NewText("hello")
	if txt.Kind != api.KindText || txt.String() != "hello" {
		t.Errorf("NewText: got %+v", txt)
	}

	bin := api.NewBinary([]byte{1, 2, 3})
	if bin.Kind != api.KindBinary || len(bin.Bytes()) != 3 {
		t.Errorf("NewBinary: got %+v", bin)
	}

	cl := api.NewClose(api.CloseNormalClosure, "bye")
	if cl.Kind != api.KindClose || cl.CloseCode != 1000 || cl.CloseReason != "bye" {
		t.Errorf("NewClose: got %+v", cl)
	}

	ping := api.NewPing([]byte("p"))
	if ping.Kind != api.KindPing || string(ping.Bytes()) != "p" {
		t.Errorf("NewPing: got %+v", ping)
	}

	pong := api.NewPong([]byte("q"))
	if pong.Kind != api.KindPong || string(pong.Bytes()) != "q" {
		t.Errorf("NewPong: got %+v", pong)
	}
}

func TestPayloadKindOpcode(t *testing.T) {
	cases := map[api.PayloadKind]byte{
		api.KindText:   api.OpcodeText,
		api.KindBinary: api.OpcodeBinary,
		api.KindClose:  api.OpcodeClose,
		api.KindPing:   api.OpcodePing,
		api.KindPong:   api.OpcodePong,
	}
	for k, want := range cases {
		if got := k.Opcode(); got != want {
			t.Errorf("%v.Opcode() = %#x, want %#x", k, got, want)
		}
	}
}

func TestFrameHeaderIsControl(t *testing.T) {
	h := api.FrameHeader{Opcode: api.OpcodeText}
	if h.IsControl() {
		t.Error("text frame reported as control")
	}
	h.Opcode = api.OpcodeClose
	if !h.IsControl() {
		t.Error("close frame not reported as control")
	}
	h.Opcode = api.OpcodePing
	if !h.IsControl() {
		t.Error("ping frame not reported as control")
	}
}

func TestRoleString(t *testing.T) {
	if api.RoleServer.String() != "server" {
		t.Errorf("RoleServer.String() = %q", api.RoleServer.String())
	}
	if api.RoleClient.String() != "client" {
		t.Errorf("RoleClient.String() = %q", api.RoleClient.String())
	}
}
