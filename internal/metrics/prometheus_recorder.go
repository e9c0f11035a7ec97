package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SupervisorStates lists the label values pre-populated on the state gauge.
var SupervisorStates = []string{"starting", "checking_for_updates", "building", "launching", "running", "crashed"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	mu            sync.Mutex
	current       string
	state         *prom.GaugeVec
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	updateChecks  *prom.CounterVec
	processExits  *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		state: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "stepd",
			Name:      "supervisor_state",
			Help:      "Current supervisor state (1 = active)",
		}, []string{"state"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "stepd",
			Name:      "build_duration_seconds",
			Help:      "Duration of step daemon toolchain builds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "stepd",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by result",
		}, []string{"outcome"}),
		updateChecks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "stepd",
			Name:      "update_checks_total",
			Help:      "Update checks by result",
		}, []string{"result"}),
		processExits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "stepd",
			Name:      "process_exits_total",
			Help:      "Step daemon exits by reason",
		}, []string{"reason"}),
	}
	for _, s := range SupervisorStates {
		pr.state.WithLabelValues(s).Set(0)
	}
	reg.MustRegister(pr.state, pr.buildDuration, pr.buildOutcome, pr.updateChecks, pr.processExits)
	return pr
}

func (p *PrometheusRecorder) SetSupervisorState(state string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" {
		p.state.WithLabelValues(p.current).Set(0)
	}
	p.current = state
	p.state.WithLabelValues(state).Set(1)
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUpdateCheck(result string) {
	if p == nil {
		return
	}
	p.updateChecks.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncProcessExit(reason string) {
	if p == nil {
		return
	}
	p.processExits.WithLabelValues(reason).Inc()
}
