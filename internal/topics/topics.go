// Package topics derives the bus topic names a transponder node publishes and
// subscribes to from its identity.
package topics

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/usbl-simulator/model"
)

const (
	suffixGlobalPosition  = "global_position"
	suffixCommandResponse = "command_response"
	suffixIndividualPing  = "individual_interrogation_ping"
	suffixCommonPing      = "common_interrogation_ping"
	suffixTemperature     = "temperature"
	suffixCommandRequest  = "command_request"
)

// Set is the full topic layout of one node.
type Set struct {
	GlobalPosition  string
	CommandResponse string
	IndividualPing  string
	CommonPing      string
	Temperature     string
	CommandRequest  string
}

// For returns the topic layout of the node with identity id.
func For(id model.Identity) Set {
	return Set{
		GlobalPosition:  GlobalPosition(id),
		CommandResponse: CommandResponse(id),
		IndividualPing:  IndividualPing(id),
		CommonPing:      CommonPing(id.Namespace),
		Temperature:     Temperature(id),
		CommandRequest:  CommandRequest(id),
	}
}

// Inbound lists the topics a node subscribes to.
func (s Set) Inbound() []string {
	return []string{s.IndividualPing, s.CommonPing, s.Temperature, s.CommandRequest}
}

// GlobalPosition is the telemetry topic. It is keyed by the transceiver
// device but the transponder ID, so a transceiver sees one topic per
// transponder it tracks.
func GlobalPosition(id model.Identity) string {
	return join(id.Namespace, id.TransceiverDevice+"_"+id.TransponderID, suffixGlobalPosition)
}

// CommandResponse is keyed by the transceiver that issued the command.
func CommandResponse(id model.Identity) string {
	return join(id.Namespace, id.TransceiverDevice+"_"+id.TransceiverID, suffixCommandResponse)
}

func IndividualPing(id model.Identity) string {
	return join(id.Namespace, id.TransponderDevice+"_"+id.TransponderID, suffixIndividualPing)
}

// CommonPing is shared by every transponder in namespace.
func CommonPing(namespace string) string {
	return "/" + namespace + "/" + suffixCommonPing
}

func Temperature(id model.Identity) string {
	return join(id.Namespace, id.TransponderDevice+"_"+id.TransponderID, suffixTemperature)
}

func CommandRequest(id model.Identity) string {
	return join(id.Namespace, id.TransponderDevice+"_"+id.TransponderID, suffixCommandRequest)
}

// Validate rejects topic names that cannot be routed: empty, relative, or
// containing empty path segments.
func Validate(topic string) error {
	if !strings.HasPrefix(topic, "/") {
		return fmt.Errorf("topic %q must start with '/'", topic)
	}
	for _, seg := range strings.Split(topic[1:], "/") {
		if seg == "" {
			return fmt.Errorf("topic %q has an empty segment", topic)
		}
	}
	return nil
}

func join(namespace, node, suffix string) string {
	return "/" + namespace + "/" + node + "/" + suffix
}
