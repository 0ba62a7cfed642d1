package kb

import (
	"fmt"

	"github.com/signalsfoundry/usbl-simulator/model"
)

// Probe answers position queries for one transponder: its own body and any
// named peer in the world. Every call reads the live KB state; nothing is
// cached.
type Probe struct {
	kb     *KnowledgeBase
	selfID string
}

// NewProbe returns a Probe for the body with the given ID.
func NewProbe(kb *KnowledgeBase, selfID string) *Probe {
	return &Probe{kb: kb, selfID: selfID}
}

// SelfPosition returns the current world position of the probe's own body.
func (p *Probe) SelfPosition() (model.Position, error) {
	pos, err := p.kb.WorldPosition(p.selfID)
	if err != nil {
		return model.Position{}, fmt.Errorf("self position: %w", err)
	}
	return pos, nil
}

// PeerPosition returns the current world position of the body named name.
func (p *Probe) PeerPosition(name string) (model.Position, error) {
	b, err := p.kb.BodyByName(name)
	if err != nil {
		return model.Position{}, fmt.Errorf("peer position: %w", err)
	}
	return b.Position, nil
}
