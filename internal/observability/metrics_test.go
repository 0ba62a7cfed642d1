package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/usbl.v1.Bus/Publish"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Bus", "Publish", "OK")); got != 1 {
		t.Fatalf("usbl_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "usbl_rpc_request_duration_seconds", map[string]string{
		"service": "Bus",
		"method":  "Publish",
	}); count != 1 {
		t.Fatalf("usbl_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/usbl.v1.Bus/Publish"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Bus", "Publish", "InvalidArgument")); got != 1 {
		t.Fatalf("usbl_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestNodeMetricsRecordTransponderActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	m := collector.NodeMetrics("transponder_1")
	m.ObserveInterrogation("individual", OutcomeResponded)
	m.ObserveInterrogation("common", OutcomeIgnored)
	m.ObservePropagationDelay(time.Second)
	m.SetEnvironment(20, 1597.4)
	m.IncCommandResponses()

	if got := testutil.ToFloat64(collector.Interrogations.WithLabelValues("transponder_1", "individual", OutcomeResponded)); got != 1 {
		t.Fatalf("responded interrogations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SoundSpeed.WithLabelValues("transponder_1")); got != 1597.4 {
		t.Fatalf("sound speed gauge = %v, want 1597.4", got)
	}
	if got := testutil.ToFloat64(collector.Temperature.WithLabelValues("transponder_1")); got != 20 {
		t.Fatalf("temperature gauge = %v, want 20", got)
	}
	if got := testutil.ToFloat64(collector.CommandResponses.WithLabelValues("transponder_1")); got != 1 {
		t.Fatalf("command responses = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "usbl_propagation_delay_seconds", map[string]string{"node": "transponder_1"}); count != 1 {
		t.Fatalf("propagation delay sample_count = %d, want 1", count)
	}
}

func TestNilNodeMetricsIsSafe(t *testing.T) {
	var m *NodeMetrics
	m.ObserveInterrogation("individual", OutcomeResponded)
	m.ObservePropagationDelay(time.Second)
	m.SetEnvironment(10, 1540.4)
	m.IncCommandResponses()

	var c *Collector
	c.ObserveBusMessage("published")
	c.ObserveBodyPosition("box", 1, 2, 3)
}

func TestObserveBodyPosition(t *testing.T) {
	collector, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.ObserveBodyPosition("box", 1540.4, 0, -100)

	for axis, want := range map[string]float64{"x": 1540.4, "y": 0, "z": -100} {
		if got := testutil.ToFloat64(collector.BodyPositions.WithLabelValues("box", axis)); got != want {
			t.Fatalf("body position %s = %v, want %v", axis, got, want)
		}
	}
}

func TestNewCollectorTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.ObserveBusMessage("published")
	if got := testutil.ToFloat64(second.BusMessages.WithLabelValues("published")); got != 1 {
		t.Fatalf("collectors do not share registered vectors, got %v", got)
	}
}

func TestMetricsHandlerExposesTransponderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	m := collector.NodeMetrics("tp")
	m.SetEnvironment(10, 1540.4)
	m.ObserveInterrogation("common", OutcomePeerNotFound)
	collector.ObserveBusMessage("delivered")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"usbl_sound_speed_meters_per_second",
		"usbl_temperature_celsius",
		"usbl_interrogations_total",
		"usbl_bus_messages_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, "1540.4") {
		t.Fatalf("/metrics output missing sound speed value: %s", body)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/usbl.v1.Bus/Subscribe": {"Bus", "Subscribe"},
		"":                       {"unknown", "unknown"},
		"nonsense":               {"unknown", "unknown"},
	}
	for in, want := range cases {
		svc, method := SplitMethod(in)
		if svc != want[0] || method != want[1] {
			t.Errorf("SplitMethod(%q) = %s/%s, want %s/%s", in, svc, method, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
