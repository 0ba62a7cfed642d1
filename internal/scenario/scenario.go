// Package scenario loads the JSON description of a simulated USBL world: the
// bodies that exist in it and the transponder nodes attached to them.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/kb"
	"github.com/signalsfoundry/usbl-simulator/model"
)

// Scenario is the decoded world description.
type Scenario struct {
	Bodies       []model.Body
	Transponders []Node
}

// Node is one transponder to start. Config is not validated here; an invalid
// entry fails only that node when it is constructed.
type Node struct {
	Config transponder.Config
	// Body is the ID of the body the transponder is mounted on.
	Body string
}

// internal JSON shapes – keep them unexported so we’re free to evolve them.
type scenarioJSON struct {
	Bodies       []bodyJSON        `json:"bodies"`
	Transponders []transponderJSON `json:"transponders"`
}

type bodyJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Position vecJSON  `json:"position"`
	Velocity *vecJSON `json:"velocity"` // optional; presence selects drift motion
}

type vecJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type transponderJSON struct {
	Namespace         string   `json:"namespace"`
	TransponderDevice string   `json:"transponder_device"`
	TransponderID     string   `json:"transponder_ID"`
	TransceiverDevice string   `json:"transceiver_device"`
	TransceiverID     string   `json:"transceiver_ID"`
	Mu                *float64 `json:"mu"`    // optional; defaults to 0
	Sigma             *float64 `json:"sigma"` // optional; defaults to 1
	Peer              string   `json:"peer"`  // optional; defaults to "box"
	Body              string   `json:"body"`  // optional; defaults to <transponder_device>_<transponder_ID>
	Seed              uint64   `json:"seed"`
}

// Load decodes a scenario from r. It fails only on malformed JSON and on
// bodies without an ID.
func Load(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("scenario: decode failed: %w", err)
	}

	sc := &Scenario{
		Bodies:       make([]model.Body, 0, len(payload.Bodies)),
		Transponders: make([]Node, 0, len(payload.Transponders)),
	}

	for i, jb := range payload.Bodies {
		if strings.TrimSpace(jb.ID) == "" {
			return nil, fmt.Errorf("scenario: body %d has an empty id", i)
		}
		b := model.Body{
			ID:       jb.ID,
			Name:     jb.Name,
			Type:     jb.Type,
			Position: model.Position(jb.Position),
		}
		if jb.Velocity != nil {
			b.Velocity = model.Position(*jb.Velocity)
			b.MotionSource = model.MotionSourceDrift
		}
		sc.Bodies = append(sc.Bodies, b)
	}

	for _, jt := range payload.Transponders {
		cfg := transponder.DefaultConfig(model.Identity{
			Namespace:         jt.Namespace,
			TransponderDevice: jt.TransponderDevice,
			TransponderID:     jt.TransponderID,
			TransceiverDevice: jt.TransceiverDevice,
			TransceiverID:     jt.TransceiverID,
		})
		if jt.Mu != nil {
			cfg.Noise.Mu = *jt.Mu
		}
		if jt.Sigma != nil {
			cfg.Noise.Sigma = *jt.Sigma
		}
		if jt.Peer != "" {
			cfg.Peer = jt.Peer
		}
		cfg.Seed = jt.Seed

		body := jt.Body
		if body == "" {
			body = jt.TransponderDevice + "_" + jt.TransponderID
		}
		sc.Transponders = append(sc.Transponders, Node{Config: cfg, Body: body})
	}
	return sc, nil
}

// LoadFile opens path and decodes it with Load.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Populate adds every scenario body to world.
func (s *Scenario) Populate(world *kb.KnowledgeBase) error {
	if world == nil {
		return fmt.Errorf("scenario: knowledge base is nil")
	}
	for i := range s.Bodies {
		b := s.Bodies[i]
		if err := world.AddBody(&b); err != nil {
			return fmt.Errorf("scenario: body %q: %w", b.ID, err)
		}
	}
	return nil
}
