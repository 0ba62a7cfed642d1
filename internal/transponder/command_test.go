package transponder

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestCommandRequest_FixedResponse(t *testing.T) {
	f := newFixture(t, model.Position{}, model.Position{X: 100})

	resp, err := f.tp.OnCommandRequest(context.Background(), Command{CommandID: 3, TransponderID: "1", Data: "status"})
	if err != nil {
		t.Fatalf("OnCommandRequest: %v", err)
	}
	want := Response{Data: "hi from transponder_1", ResponseID: 1, TransceiverID: 7}
	if resp != want {
		t.Fatalf("expected %+v, got %+v", want, resp)
	}
	if len(f.pub.responses) != 1 || f.pub.responses[0] != want {
		t.Fatalf("expected response to be published, got %v", f.pub.responses)
	}
	if f.sched.Pending() != 0 {
		t.Fatalf("command responses must not be delayed")
	}
}

func TestCommandRequest_ContentIgnored(t *testing.T) {
	f := newFixture(t, model.Position{}, model.Position{X: 100})

	a, _ := f.tp.OnCommandRequest(context.Background(), Command{})
	b, _ := f.tp.OnCommandRequest(context.Background(), Command{CommandID: 99, TransponderID: "other", Data: "reboot"})
	if a != b {
		t.Fatalf("responses differ: %+v vs %+v", a, b)
	}
}

func TestCommandRequest_PublishError(t *testing.T) {
	f := newFixture(t, model.Position{}, model.Position{X: 100})
	f.pub.err = errors.New("down")

	resp, err := f.tp.OnCommandRequest(context.Background(), Command{})
	if err == nil {
		t.Fatalf("expected publish error")
	}
	if resp.ResponseID != ResponseID {
		t.Fatalf("expected response to be returned alongside the error, got %+v", resp)
	}
}

func TestTransceiverNumber(t *testing.T) {
	cases := map[string]int{"transceiver_7": 7, "0": 0, "tx12": 2}
	for id, want := range cases {
		got, err := transceiverNumber(id)
		if err != nil || got != want {
			t.Errorf("transceiverNumber(%q) = %d, %v; want %d", id, got, err, want)
		}
	}
	for _, id := range []string{"", "transceiver_a", "7x"} {
		if _, err := transceiverNumber(id); err == nil {
			t.Errorf("transceiverNumber(%q): expected error", id)
		}
	}
}
