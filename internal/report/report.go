// Package report collects channel failures and slot activity for the host.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rbright/soloist/internal/fsm"
	"github.com/rbright/soloist/internal/ipc"
)

const namespace = "soloist"

// Sink logs every reported failure and keeps counters on its own registry.
// It satisfies both ipc.Reporter and ipc.Observer.
type Sink struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	failures   *prometheus.CounterVec
	superseded *prometheus.CounterVec
	dispatched prometheus.Counter
	argc       prometheus.Histogram
}

var (
	_ ipc.Reporter = (*Sink)(nil)
	_ ipc.Observer = (*Sink)(nil)
)

// New builds a Sink writing through logger.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Sink{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ipc",
				Name:      "failures_total",
				Help:      "Local channel failures by kind.",
			},
			[]string{"kind"},
		),
		superseded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ipc",
				Name:      "superseded_total",
				Help:      "Tracked connections replaced by a newer one, by slot state.",
			},
			[]string{"state"},
		),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "dispatched_total",
			Help:      "Argument lists delivered to the handler.",
		}),
		argc: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "dispatched_args",
			Help:      "Argument count per delivered list.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 64},
		}),
	}

	s.registry.MustRegister(
		s.failures,
		s.superseded,
		s.dispatched,
		s.argc,
		collectors.NewGoCollector(),
	)
	return s
}

// Report implements ipc.Reporter.
func (s *Sink) Report(kind ipc.Kind, description string) {
	s.failures.WithLabelValues(string(kind)).Inc()
	s.logger.Warn("ipc failure", "kind", string(kind), "description", description)
}

// Dispatched implements ipc.Observer.
func (s *Sink) Dispatched(argc int) {
	s.dispatched.Inc()
	s.argc.Observe(float64(argc))
}

// Superseded implements ipc.Observer.
func (s *Sink) Superseded(state fsm.State) {
	s.superseded.WithLabelValues(string(state)).Inc()
}

// Registry exposes the private registry for export and tests.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// WriteTextfile writes the soloist metrics in text exposition format, suitable
// for a node_exporter textfile collector.
func (s *Sink) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Summary is a one-line totals string such as
// "dispatched=2 superseded=1 failures[read_failed=1]".
func (s *Sink) Summary() string {
	families, err := s.registry.Gather()
	if err != nil {
		return "metrics unavailable: " + err.Error()
	}

	var dispatched, superseded float64
	failures := map[string]float64{}
	for _, family := range families {
		switch family.GetName() {
		case namespace + "_ipc_dispatched_total":
			for _, m := range family.GetMetric() {
				dispatched += m.GetCounter().GetValue()
			}
		case namespace + "_ipc_superseded_total":
			for _, m := range family.GetMetric() {
				superseded += m.GetCounter().GetValue()
			}
		case namespace + "_ipc_failures_total":
			for _, m := range family.GetMetric() {
				for _, label := range m.GetLabel() {
					if label.GetName() == "kind" {
						failures[label.GetValue()] += m.GetCounter().GetValue()
					}
				}
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "dispatched=%d superseded=%d", int(dispatched), int(superseded))
	if len(failures) == 0 {
		return b.String()
	}

	kinds := make([]string, 0, len(failures))
	for kind := range failures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, int(failures[kind])))
	}
	fmt.Fprintf(&b, " failures[%s]", strings.Join(parts, " "))
	return b.String()
}
