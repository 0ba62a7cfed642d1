package kb

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/usbl-simulator/model"
)

func TestProbeReadsLivePositions(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddBody(&model.Body{ID: "tp1", Name: "transponder_1"}); err != nil {
		t.Fatalf("AddBody error: %v", err)
	}
	if err := store.AddBody(&model.Body{ID: "box-1", Name: "box", Position: model.Position{X: 10}}); err != nil {
		t.Fatalf("AddBody error: %v", err)
	}

	probe := NewProbe(store, "tp1")

	self, err := probe.SelfPosition()
	if err != nil || self != (model.Position{}) {
		t.Fatalf("SelfPosition = %v, %v", self, err)
	}
	peer, err := probe.PeerPosition("box")
	if err != nil || peer.X != 10 {
		t.Fatalf("PeerPosition = %v, %v", peer, err)
	}

	if err := store.UpdateBodyPosition("tp1", model.Position{Z: -40}); err != nil {
		t.Fatalf("UpdateBodyPosition error: %v", err)
	}
	self, _ = probe.SelfPosition()
	if self.Z != -40 {
		t.Fatalf("SelfPosition not live: %v", self)
	}
}

func TestProbeMissingBodies(t *testing.T) {
	probe := NewProbe(NewKnowledgeBase(), "ghost")
	if _, err := probe.SelfPosition(); !errors.Is(err, ErrBodyNotFound) {
		t.Fatalf("SelfPosition: expected ErrBodyNotFound, got %v", err)
	}
	if _, err := probe.PeerPosition("box"); !errors.Is(err, ErrBodyNotFound) {
		t.Fatalf("PeerPosition: expected ErrBodyNotFound, got %v", err)
	}
}
