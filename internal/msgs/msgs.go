// Package msgs converts transponder payloads to and from the
// google.protobuf.Struct values carried on the bus.
package msgs

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/model"
)

// ErrMalformed is returned when a payload lacks a field or carries the wrong type.
var ErrMalformed = errors.New("malformed message")

// Field names on the wire.
const (
	FieldData          = "data"
	FieldX             = "x"
	FieldY             = "y"
	FieldZ             = "z"
	FieldCommandID     = "commandID"
	FieldTransponderID = "transponderID"
	FieldResponseID    = "responseID"
	FieldTransceiverID = "transceiverID"
	FieldPeer          = "peer"
)

// String wraps s as {data: s}.
func String(s string) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{FieldData: structpb.NewStringValue(s)})
}

// DecodeString returns the string data field.
func DecodeString(st *structpb.Struct) (string, error) {
	return stringField(st, FieldData)
}

// Ping encodes an interrogation. An empty peer is omitted and the receiving
// node falls back to its configured peer.
func Ping(command, peer string) *structpb.Struct {
	st := String(command)
	if peer != "" {
		st.Fields[FieldPeer] = structpb.NewStringValue(peer)
	}
	return st
}

// DecodePing returns the interrogation command and the optional peer name.
func DecodePing(st *structpb.Struct) (command, peer string, err error) {
	if command, err = DecodeString(st); err != nil {
		return "", "", err
	}
	if _, ok := st.GetFields()[FieldPeer]; ok {
		if peer, err = stringField(st, FieldPeer); err != nil {
			return "", "", err
		}
	}
	return command, peer, nil
}

// Float64 wraps v as {data: v}; temperature updates use it.
func Float64(v float64) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{FieldData: structpb.NewNumberValue(v)})
}

// DecodeFloat64 returns the numeric data field.
func DecodeFloat64(st *structpb.Struct) (float64, error) {
	return numberField(st, FieldData)
}

// Vector3d encodes a position as {x, y, z}.
func Vector3d(p model.Position) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldX: structpb.NewNumberValue(p.X),
		FieldY: structpb.NewNumberValue(p.Y),
		FieldZ: structpb.NewNumberValue(p.Z),
	})
}

// DecodeVector3d reads a position; all three axes are required.
func DecodeVector3d(st *structpb.Struct) (model.Position, error) {
	var p model.Position
	var err error
	if p.X, err = numberField(st, FieldX); err != nil {
		return model.Position{}, err
	}
	if p.Y, err = numberField(st, FieldY); err != nil {
		return model.Position{}, err
	}
	if p.Z, err = numberField(st, FieldZ); err != nil {
		return model.Position{}, err
	}
	return p, nil
}

// Command encodes a command request as {commandID, transponderID, data}.
func Command(c transponder.Command) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldCommandID:     structpb.NewNumberValue(float64(c.CommandID)),
		FieldTransponderID: structpb.NewStringValue(c.TransponderID),
		FieldData:          structpb.NewStringValue(c.Data),
	})
}

// DecodeCommand is lenient: command content never affects the response, so
// absent fields decode to their zero values. Present fields must still have
// the right type.
func DecodeCommand(st *structpb.Struct) (transponder.Command, error) {
	if st == nil {
		return transponder.Command{}, fmt.Errorf("%w: nil payload", ErrMalformed)
	}
	var c transponder.Command
	if _, ok := st.GetFields()[FieldCommandID]; ok {
		id, err := intField(st, FieldCommandID)
		if err != nil {
			return transponder.Command{}, err
		}
		c.CommandID = id
	}
	if _, ok := st.GetFields()[FieldTransponderID]; ok {
		s, err := stringField(st, FieldTransponderID)
		if err != nil {
			return transponder.Command{}, err
		}
		c.TransponderID = s
	}
	if _, ok := st.GetFields()[FieldData]; ok {
		s, err := stringField(st, FieldData)
		if err != nil {
			return transponder.Command{}, err
		}
		c.Data = s
	}
	return c, nil
}

// Response encodes a command response as {data, responseID, transceiverID}.
func Response(r transponder.Response) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldData:          structpb.NewStringValue(r.Data),
		FieldResponseID:    structpb.NewNumberValue(float64(r.ResponseID)),
		FieldTransceiverID: structpb.NewNumberValue(float64(r.TransceiverID)),
	})
}

// DecodeResponse is strict: every field must be present and integral where
// numeric.
func DecodeResponse(st *structpb.Struct) (transponder.Response, error) {
	var r transponder.Response
	var err error
	if r.Data, err = stringField(st, FieldData); err != nil {
		return transponder.Response{}, err
	}
	if r.ResponseID, err = intField(st, FieldResponseID); err != nil {
		return transponder.Response{}, err
	}
	if r.TransceiverID, err = intField(st, FieldTransceiverID); err != nil {
		return transponder.Response{}, err
	}
	return r, nil
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

func field(st *structpb.Struct, name string) (*structpb.Value, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformed)
	}
	v, ok := st.GetFields()[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrMalformed, name)
	}
	return v, nil
}

func stringField(st *structpb.Struct, name string) (string, error) {
	v, err := field(st, name)
	if err != nil {
		return "", err
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformed, name)
	}
	return s.StringValue, nil
}

func numberField(st *structpb.Struct, name string) (float64, error) {
	v, err := field(st, name)
	if err != nil {
		return 0, err
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is not a number", ErrMalformed, name)
	}
	return n.NumberValue, nil
}

func intField(st *structpb.Struct, name string) (int, error) {
	f, err := numberField(st, name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %q is not an integer: %v", ErrMalformed, name, f)
	}
	return int(f), nil
}
