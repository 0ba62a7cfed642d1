// Command usbl-ping plays the transceiver side of a USBL pair against a
// running transponder-sim: it sends an interrogation, a command or a
// temperature update over gRPC and prints what comes back.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/msgs"
	"github.com/signalsfoundry/usbl-simulator/internal/topics"
	"github.com/signalsfoundry/usbl-simulator/internal/transponder"
	"github.com/signalsfoundry/usbl-simulator/internal/transport"
	"github.com/signalsfoundry/usbl-simulator/model"
)

// Modes accepted by -mode.
const (
	modePing        = "ping"
	modeCommon      = "common"
	modeCommand     = "command"
	modeTemperature = "temperature"
)

type options struct {
	endpoint    string
	identity    model.Identity
	mode        string
	command     string
	peer        string
	data        string
	temperature float64
	count       int
	wait        time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("usbl-ping", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.endpoint, "endpoint", "localhost:50061", "usbl.v1.Bus gRPC endpoint (host:port)")
	fs.StringVar(&opts.identity.Namespace, "namespace", "usbl", "Topic namespace")
	fs.StringVar(&opts.identity.TransponderDevice, "transponder-device", "transponder", "Transponder device name")
	fs.StringVar(&opts.identity.TransponderID, "transponder-id", "1", "Transponder ID")
	fs.StringVar(&opts.identity.TransceiverDevice, "transceiver-device", "transceiver", "Transceiver device name")
	fs.StringVar(&opts.identity.TransceiverID, "transceiver-id", "transceiver_1", "Transceiver ID")
	fs.StringVar(&opts.mode, "mode", modePing, "One of: ping, common, command, temperature")
	fs.StringVar(&opts.command, "command", transponder.PingCommand, "Interrogation payload for ping/common modes")
	fs.StringVar(&opts.peer, "peer", "", "Peer body for the delay computation (empty uses the node's default)")
	fs.StringVar(&opts.data, "data", "", "Data field of a command request")
	fs.Float64Var(&opts.temperature, "temperature", 10, "Water temperature in degrees Celsius for temperature mode")
	fs.IntVar(&opts.count, "count", 1, "Number of interrogations to send")
	fs.DurationVar(&opts.wait, "wait", 10*time.Second, "How long to wait for replies")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.mode {
	case modePing, modeCommon, modeCommand, modeTemperature:
	default:
		return options{}, fmt.Errorf("unknown mode %q", opts.mode)
	}
	if opts.count < 1 {
		return options{}, fmt.Errorf("count must be at least 1, got %d", opts.count)
	}
	if opts.wait <= 0 {
		return options{}, fmt.Errorf("wait must be positive, got %s", opts.wait)
	}
	return opts, nil
}

// request is what one invocation sends and which replies it waits for.
type request struct {
	topic   string
	payload *structpb.Struct
	sends   int
	replyOn string
	replies int
}

func buildRequest(opts options) request {
	set := topics.For(opts.identity)
	switch opts.mode {
	case modeCommon:
		return request{topic: set.CommonPing, payload: msgs.Ping(opts.command, opts.peer), sends: opts.count, replyOn: set.GlobalPosition, replies: opts.count}
	case modeCommand:
		id, _ := strconv.Atoi(opts.identity.TransponderID)
		cmd := transponder.Command{CommandID: id, TransponderID: opts.identity.TransponderID, Data: opts.data}
		return request{topic: set.CommandRequest, payload: msgs.Command(cmd), sends: 1, replyOn: set.CommandResponse, replies: 1}
	case modeTemperature:
		return request{topic: set.Temperature, payload: msgs.Float64(opts.temperature), sends: 1}
	default:
		return request{topic: set.IndividualPing, payload: msgs.Ping(opts.command, opts.peer), sends: opts.count, replyOn: set.GlobalPosition, replies: opts.count}
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("%v", err)
	}
	req := buildRequest(opts)

	client, err := transport.Dial(opts.endpoint)
	if err != nil {
		log.Fatalf("dial %s: %v", opts.endpoint, err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.wait)
	defer cancel()

	var incoming <-chan bus.Message
	var streamErr <-chan error
	if req.replies > 0 {
		if incoming, streamErr, err = client.Subscribe(ctx, req.replyOn); err != nil {
			log.Fatalf("subscribe %s: %v", req.replyOn, err)
		}
	}

	sentAt := time.Now()
	for i := 0; i < req.sends; i++ {
		if err := client.Publish(ctx, req.topic, req.payload); err != nil {
			log.Fatalf("publish %s: %v", req.topic, err)
		}
	}
	log.Printf("sent %d message(s) on %s", req.sends, req.topic)

	for i := 0; i < req.replies; i++ {
		select {
		case m, ok := <-incoming:
			if !ok {
				log.Fatalf("reply stream closed after %d of %d replies: %v", i, req.replies, <-streamErr)
			}
			fmt.Println(formatReply(m, time.Since(sentAt)))
		case <-ctx.Done():
			log.Fatalf("timed out after %d of %d replies (an unknown command or missing peer gets no reply)", i, req.replies)
		}
	}
}

func formatReply(m bus.Message, elapsed time.Duration) string {
	if pos, err := msgs.DecodeVector3d(m.Payload); err == nil {
		return fmt.Sprintf("%s after %s: x=%.3f y=%.3f z=%.3f", m.Topic, elapsed.Round(time.Millisecond), pos.X, pos.Y, pos.Z)
	}
	if resp, err := msgs.DecodeResponse(m.Payload); err == nil {
		return fmt.Sprintf("%s: data=%q responseID=%d transceiverID=%d", m.Topic, resp.Data, resp.ResponseID, resp.TransceiverID)
	}
	return fmt.Sprintf("%s: %v", m.Topic, m.Payload.AsMap())
}
