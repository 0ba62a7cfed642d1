package topics

import (
	"testing"

	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestFor(t *testing.T) {
	id := model.Identity{
		Namespace:         "usbl",
		TransponderDevice: "transponder",
		TransponderID:     "1",
		TransceiverDevice: "transceiver",
		TransceiverID:     "transceiver_7",
	}
	got := For(id)
	want := Set{
		GlobalPosition:  "/usbl/transceiver_1/global_position",
		CommandResponse: "/usbl/transceiver_transceiver_7/command_response",
		IndividualPing:  "/usbl/transponder_1/individual_interrogation_ping",
		CommonPing:      "/usbl/common_interrogation_ping",
		Temperature:     "/usbl/transponder_1/temperature",
		CommandRequest:  "/usbl/transponder_1/command_request",
	}
	if got != want {
		t.Fatalf("unexpected topics:\n got %+v\nwant %+v", got, want)
	}
	if n := len(got.Inbound()); n != 4 {
		t.Fatalf("expected 4 inbound topics, got %d", n)
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"/a", "/usbl/transponder_1/temperature"} {
		if err := Validate(ok); err != nil {
			t.Errorf("Validate(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a/b", "/", "/a//b", "/a/"} {
		if err := Validate(bad); err == nil {
			t.Errorf("Validate(%q): expected error", bad)
		}
	}
}
