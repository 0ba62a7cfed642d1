package msgs

import (
	"errors"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestVector3dRoundTrip(t *testing.T) {
	p := model.Position{X: 1.5, Y: -2, Z: -1000}
	got, err := DecodeVector3d(Vector3d(p))
	if err != nil {
		t.Fatalf("DecodeVector3d: %v", err)
	}
	if got != p {
		t.Fatalf("expected %v, got %v", p, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	r := transponder.Response{Data: "hi from transponder_1", ResponseID: 1, TransceiverID: 7}
	got, err := DecodeResponse(Response(r))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got != r {
		t.Fatalf("expected %+v, got %+v", r, got)
	}
}

func TestDecodeCommand_Lenient(t *testing.T) {
	c, err := DecodeCommand(&structpb.Struct{})
	if err != nil {
		t.Fatalf("DecodeCommand(empty): %v", err)
	}
	if c != (transponder.Command{}) {
		t.Fatalf("expected zero command, got %+v", c)
	}

	want := transponder.Command{CommandID: 4, TransponderID: "1", Data: "status"}
	got, err := DecodeCommand(Command(want))
	if err != nil || got != want {
		t.Fatalf("DecodeCommand = %+v, %v; want %+v", got, err, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	wrongType := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldData: structpb.NewNumberValue(3),
	}}
	fractional := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldCommandID: structpb.NewNumberValue(1.5),
	}}

	checks := map[string]error{}
	_, checks["string from number"] = DecodeString(wrongType)
	_, checks["float from string"] = DecodeFloat64(String("warm"))
	_, checks["vector missing z"] = DecodeVector3d(&structpb.Struct{Fields: map[string]*structpb.Value{
		FieldX: structpb.NewNumberValue(1),
		FieldY: structpb.NewNumberValue(2),
	}})
	_, checks["nil payload"] = DecodeFloat64(nil)
	_, checks["fractional command id"] = DecodeCommand(fractional)

	for name, err := range checks {
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestScalars(t *testing.T) {
	if s, err := DecodeString(String("ping")); err != nil || s != "ping" {
		t.Fatalf("DecodeString = %q, %v", s, err)
	}
	if f, err := DecodeFloat64(Float64(12.5)); err != nil || f != 12.5 {
		t.Fatalf("DecodeFloat64 = %v, %v", f, err)
	}
}

func TestPing(t *testing.T) {
	cmd, peer, err := DecodePing(Ping("ping", ""))
	if err != nil || cmd != "ping" || peer != "" {
		t.Fatalf("DecodePing = %q, %q, %v", cmd, peer, err)
	}
	cmd, peer, err = DecodePing(Ping("ping", "vehicle"))
	if err != nil || cmd != "ping" || peer != "vehicle" {
		t.Fatalf("DecodePing = %q, %q, %v", cmd, peer, err)
	}
}
