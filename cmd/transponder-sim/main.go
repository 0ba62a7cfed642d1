package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/usbl-simulator/core"
	"github.com/signalsfoundry/usbl-simulator/internal/bus"
	"github.com/signalsfoundry/usbl-simulator/internal/logging"
	"github.com/signalsfoundry/usbl-simulator/internal/node"
	"github.com/signalsfoundry/usbl-simulator/internal/observability"
	"github.com/signalsfoundry/usbl-simulator/internal/scenario"
	"github.com/signalsfoundry/usbl-simulator/internal/sched"
	"github.com/signalsfoundry/usbl-simulator/internal/transport"
	"github.com/signalsfoundry/usbl-simulator/kb"
	"github.com/signalsfoundry/usbl-simulator/timectrl"
)

type options struct {
	scenarioPath string
	grpcAddr     string
	metricsAddr  string
	tick         time.Duration
	duration     time.Duration
	accelerated  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("transponder-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.scenarioPath, "scenario", "configs/scenario.json", "Path to the JSON world and transponder scenario")
	fs.StringVar(&opts.grpcAddr, "grpc-addr", ":50061", "TCP address the usbl.v1.Bus gRPC server listens on")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", ":9091", "HTTP address for Prometheus /metrics (empty disables)")
	fs.DurationVar(&opts.tick, "tick", 10*time.Millisecond, "simulation tick; bounds the resolution of propagation delays")
	fs.DurationVar(&opts.duration, "duration", 0, "total simulation duration (0 runs until interrupted)")
	fs.BoolVar(&opts.accelerated, "accelerated", false, "run in accelerated mode (vs real-time)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.tick <= 0 {
		return options{}, fmt.Errorf("tick must be positive, got %s", opts.tick)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, log); err != nil {
		log.Error(ctx, "transponder simulator failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log logging.Logger) error {
	sc, err := scenario.LoadFile(opts.scenarioPath)
	if err != nil {
		return err
	}

	tracingCfg := observability.TracingConfigFromEnv().WithDeployment(opts.scenarioPath, transponderNames(sc), opts.tick)
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(opts.metricsAddr, collector, log)

	world := kb.NewKnowledgeBase()
	if err := sc.Populate(world); err != nil {
		return err
	}
	stopTracking := exportBodyPositions(world, collector)
	defer stopTracking()

	mode := timectrl.RealTime
	if opts.accelerated {
		mode = timectrl.Accelerated
	}
	start := time.Now().UTC()
	tc := timectrl.NewTimeController(start, opts.tick, mode)
	scheduler := sched.NewEventScheduler(tc)
	engine := core.NewSimulationEngine(world, scheduler, start)
	engine.TrackBodies()
	tc.AddListener(engine.Step)

	broker := bus.New(bus.Options{Logger: log, Metrics: collector})
	defer broker.Close()

	nodes := startNodes(sc, world, broker, scheduler, collector, log)
	defer func() {
		for _, n := range nodes {
			n.Close()
		}
	}()
	if len(nodes) == 0 {
		return errors.New("no transponder node could be started")
	}
	log.Info(ctx, "loaded scenario",
		logging.String("path", opts.scenarioPath),
		logging.Int("bodies", len(sc.Bodies)),
		logging.Int("transponders", len(nodes)),
	)

	server := transport.NewServer(broker, log, collector)
	lis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.grpcAddr, err)
	}
	log.Info(ctx, "starting usbl.v1.Bus gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "starting simulation",
		logging.String("mode", mode.String()),
		logging.String("tick", opts.tick.String()),
		logging.String("duration", opts.duration.String()),
	)
	done := tc.Start(ctx, opts.duration)
	select {
	case <-ctx.Done():
	case <-done:
	}

	log.Info(context.Background(), "shutting down transponder simulator",
		logging.Int("pending_responses", scheduler.Pending()))
	// Subscribe streams only end when clients leave, so do not wait for them.
	server.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// startNodes starts one node per scenario transponder. A node with an invalid
// configuration is logged and skipped; the others still run.
func startNodes(
	sc *scenario.Scenario,
	world *kb.KnowledgeBase,
	broker *bus.Broker,
	scheduler sched.EventScheduler,
	collector *observability.Collector,
	log logging.Logger,
) []*node.Node {
	var nodes []*node.Node
	for _, entry := range sc.Transponders {
		n, err := node.New(entry.Config, node.Deps{
			Broker:    broker,
			Probe:     kb.NewProbe(world, entry.Body),
			Scheduler: scheduler,
			Logger:    log,
			Metrics:   collector,
		})
		if err == nil {
			err = n.Start()
		}
		if err != nil {
			log.Error(context.Background(), "transponder node not started",
				logging.String("body", entry.Body),
				logging.String("transponder_id", entry.Config.Identity.TransponderID),
				logging.Err(err),
			)
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func transponderNames(sc *scenario.Scenario) []string {
	names := make([]string, 0, len(sc.Transponders))
	for _, entry := range sc.Transponders {
		id := entry.Config.Identity
		names = append(names, id.TransponderDevice+"_"+id.TransponderID)
	}
	return names
}

// exportBodyPositions mirrors every body's world position into the collector,
// starting with the current positions and then following KB updates.
func exportBodyPositions(world *kb.KnowledgeBase, collector *observability.Collector) (stop func()) {
	for _, b := range world.ListBodies() {
		collector.ObserveBodyPosition(b.ID, b.Position.X, b.Position.Y, b.Position.Z)
	}
	return world.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventBodyUpdated {
			return
		}
		collector.ObserveBodyPosition(ev.Body.ID, ev.Body.Position.X, ev.Body.Position.Y, ev.Body.Position.Z)
	})
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
