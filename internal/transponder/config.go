package transponder

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/usbl-simulator/core"
	"github.com/signalsfoundry/usbl-simulator/model"
)

// DefaultPeer is the body whose distance sets the propagation delay when a
// node does not name its own peer.
const DefaultPeer = "box"

// Config is the validated construction input of a Transponder.
type Config struct {
	Identity model.Identity
	Noise    model.NoiseParameters

	// Peer names the body pings are assumed to originate from.
	Peer string

	// Seed seeds the node's noise generator; 0 picks a random seed.
	Seed uint64
}

// DefaultConfig returns a Config with default noise and peer for identity.
func DefaultConfig(identity model.Identity) Config {
	return Config{
		Identity: identity,
		Noise:    model.DefaultNoiseParameters(),
		Peer:     DefaultPeer,
	}
}

// Validate checks required identity fields, noise parameters and the
// transceiver ID contract. All failures wrap ErrConfiguration.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"namespace", c.Identity.Namespace},
		{"transponder_device", c.Identity.TransponderDevice},
		{"transponder_ID", c.Identity.TransponderID},
		{"transceiver_device", c.Identity.TransceiverDevice},
		{"transceiver_ID", c.Identity.TransceiverID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: missing required parameter <%s>", ErrConfiguration, f.name)
		}
	}
	if err := core.ValidateNoise(c.Noise); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if _, err := transceiverNumber(c.Identity.TransceiverID); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// transceiverNumber returns the numeric value of the last character of id,
// which must be a decimal digit ("transceiver_7" -> 7).
func transceiverNumber(id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("transceiver ID is empty")
	}
	last := id[len(id)-1]
	if last < '0' || last > '9' {
		return 0, fmt.Errorf("transceiver ID %q must end in a decimal digit", id)
	}
	return int(last - '0'), nil
}
