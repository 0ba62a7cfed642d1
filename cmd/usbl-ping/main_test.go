package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/msgs"
	"github.com/signalsfoundry/usbl-simulator/internal/topics"
	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, o options) {
				if o.endpoint != "localhost:50061" || o.mode != modePing || o.count != 1 || o.wait != 10*time.Second {
					t.Fatalf("unexpected defaults %+v", o)
				}
				if o.command != transponder.PingCommand || o.identity.TransceiverID != "transceiver_1" {
					t.Fatalf("unexpected default identity or command %+v", o)
				}
			},
		},
		{
			name: "common burst",
			args: []string{"-mode", "common", "-count", "3", "-peer", "buoy", "-namespace", "sea"},
			check: func(t *testing.T, o options) {
				if o.mode != modeCommon || o.count != 3 || o.peer != "buoy" || o.identity.Namespace != "sea" {
					t.Fatalf("unexpected options %+v", o)
				}
			},
		},
		{
			name: "temperature",
			args: []string{"-mode", "temperature", "-temperature", "20"},
			check: func(t *testing.T, o options) {
				if o.temperature != 20 {
					t.Fatalf("temperature = %v, want 20", o.temperature)
				}
			},
		},
		{name: "unknown mode", args: []string{"-mode", "sonar"}, wantErr: true},
		{name: "zero count", args: []string{"-count", "0"}, wantErr: true},
		{name: "zero wait", args: []string{"-wait", "0s"}, wantErr: true},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", o)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			tt.check(t, o)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	set := topics.For(opts.identity)

	opts.count = 2
	ping := buildRequest(opts)
	if ping.topic != set.IndividualPing || ping.replyOn != set.GlobalPosition || ping.sends != 2 || ping.replies != 2 {
		t.Fatalf("unexpected ping request %+v", ping)
	}
	if cmd, _, err := msgs.DecodePing(ping.payload); err != nil || cmd != transponder.PingCommand {
		t.Fatalf("ping payload = %q, %v", cmd, err)
	}

	opts.mode = modeCommon
	if common := buildRequest(opts); common.topic != set.CommonPing || common.replies != 2 {
		t.Fatalf("unexpected common request %+v", common)
	}

	opts.mode = modeCommand
	opts.data = "hello"
	command := buildRequest(opts)
	if command.topic != set.CommandRequest || command.replyOn != set.CommandResponse || command.sends != 1 || command.replies != 1 {
		t.Fatalf("unexpected command request %+v", command)
	}
	got, err := msgs.DecodeCommand(command.payload)
	if err != nil || got != (transponder.Command{CommandID: 1, TransponderID: "1", Data: "hello"}) {
		t.Fatalf("command payload = %+v, %v", got, err)
	}

	opts.mode = modeTemperature
	opts.temperature = 20
	temp := buildRequest(opts)
	if temp.topic != set.Temperature || temp.replies != 0 {
		t.Fatalf("unexpected temperature request %+v", temp)
	}
	if v, err := msgs.DecodeFloat64(temp.payload); err != nil || v != 20 {
		t.Fatalf("temperature payload = %v, %v", v, err)
	}
}

func TestFormatReply(t *testing.T) {
	pos := formatReply(bus.Message{Topic: "/usbl/transceiver_1/global_position", Payload: msgs.Vector3d(model.Position{X: 1, Y: 2, Z: -3})}, 1500*time.Millisecond)
	if !strings.Contains(pos, "after 1.5s") || !strings.Contains(pos, "z=-3.000") {
		t.Fatalf("unexpected position line %q", pos)
	}

	resp := formatReply(bus.Message{Topic: "/r", Payload: msgs.Response(transponder.Response{Data: "hi from transponder_1", ResponseID: 1, TransceiverID: 7})}, 0)
	if !strings.Contains(resp, `data="hi from transponder_1"`) || !strings.Contains(resp, "transceiverID=7") {
		t.Fatalf("unexpected response line %q", resp)
	}

	other := formatReply(bus.Message{Topic: "/t", Payload: &structpb.Struct{Fields: map[string]*structpb.Value{"k": structpb.NewBoolValue(true)}}}, 0)
	if !strings.Contains(other, "map[k:true]") {
		t.Fatalf("unexpected fallback line %q", other)
	}
}
