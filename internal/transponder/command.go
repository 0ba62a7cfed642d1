package transponder

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/usbl-simulator/internal/logging"
)

// ResponseID is the fixed identifier carried by every command response.
const ResponseID = 1

// Command is a structured request from a transceiver. Its content does not
// influence the response.
type Command struct {
	CommandID     int
	TransponderID string
	Data          string
}

// Response answers a Command.
type Response struct {
	Data          string
	ResponseID    int
	TransceiverID int
}

// OnCommandRequest builds the fixed response for cmd and publishes it without
// any propagation delay. The response is returned even when publishing fails.
func (t *Transponder) OnCommandRequest(ctx context.Context, cmd Command) (Response, error) {
	resp := Response{
		Data:          "hi from transponder_" + t.identity.TransponderID,
		ResponseID:    ResponseID,
		TransceiverID: t.txNumber,
	}
	t.log.Info(ctx, "received command",
		logging.Int("command_id", cmd.CommandID),
		logging.String("command_transponder_id", cmd.TransponderID),
		logging.String("data", cmd.Data),
	)
	if err := t.pub.PublishCommandResponse(ctx, resp); err != nil {
		t.log.Warn(ctx, "command response not sent", logging.Err(err))
		return resp, fmt.Errorf("publish command response: %w", err)
	}
	t.metrics.IncCommandResponses()
	return resp, nil
}
