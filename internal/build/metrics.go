package build

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder receives build telemetry. Implementations must be safe for
// concurrent use since watch handlers of different categories run in
// parallel.
type Recorder interface {
	ObserveStepDuration(step Step, d time.Duration, success bool)
	AddPages(written, failed, unresolved int)
	AddFilesCopied(n int)
	ObserveDispatch(category string, d time.Duration, success bool)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(Step, time.Duration, bool) {}
func (NoopRecorder) AddPages(int, int, int)                        {}
func (NoopRecorder) AddFilesCopied(int)                            {}
func (NoopRecorder) ObserveDispatch(string, time.Duration, bool)   {}

// PrometheusRecorder implements Recorder with Prometheus collectors
// registered on a caller supplied registry.
type PrometheusRecorder struct {
	once             sync.Once
	stepDuration     *prom.HistogramVec
	stepResults      *prom.CounterVec
	pages            *prom.CounterVec
	filesCopied      prom.Counter
	dispatchDuration *prom.HistogramVec
	lastBuild        prom.Gauge
}

// NewPrometheusRecorder constructs and registers the build collectors.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "devsite",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual build steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step", "result"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devsite",
			Name:      "step_results_total",
			Help:      "Build step outcomes",
		}, []string{"step", "result"})
		pr.pages = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "devsite",
			Name:      "pages_total",
			Help:      "HTML pages processed by outcome",
		}, []string{"outcome"})
		pr.filesCopied = prom.NewCounter(prom.CounterOpts{
			Namespace: "devsite",
			Name:      "files_copied_total",
			Help:      "Files copied into the output tree",
		})
		pr.dispatchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "devsite",
			Name:      "watch_dispatch_duration_seconds",
			Help:      "Duration of watch-triggered rebuilds by category",
			Buckets:   prom.DefBuckets,
		}, []string{"category", "result"})
		pr.lastBuild = prom.NewGauge(prom.GaugeOpts{
			Namespace: "devsite",
			Name:      "last_step_timestamp_seconds",
			Help:      "Unix time of the most recent build step",
		})
		reg.MustRegister(pr.stepDuration, pr.stepResults, pr.pages, pr.filesCopied, pr.dispatchDuration, pr.lastBuild)
	})
	return pr
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveStepDuration(step Step, d time.Duration, success bool) {
	if p == nil || p.stepDuration == nil {
		return
	}
	res := resultLabel(success)
	p.stepDuration.WithLabelValues(string(step), res).Observe(d.Seconds())
	p.stepResults.WithLabelValues(string(step), res).Inc()
	p.lastBuild.SetToCurrentTime()
}

func (p *PrometheusRecorder) AddPages(written, failed, unresolved int) {
	if p == nil || p.pages == nil {
		return
	}
	p.pages.WithLabelValues("written").Add(float64(written))
	p.pages.WithLabelValues("failed").Add(float64(failed))
	p.pages.WithLabelValues("unresolved_marker").Add(float64(unresolved))
}

func (p *PrometheusRecorder) AddFilesCopied(n int) {
	if p == nil || p.filesCopied == nil {
		return
	}
	p.filesCopied.Add(float64(n))
}

func (p *PrometheusRecorder) ObserveDispatch(category string, d time.Duration, success bool) {
	if p == nil || p.dispatchDuration == nil {
		return
	}
	p.dispatchDuration.WithLabelValues(category, resultLabel(success)).Observe(d.Seconds())
}
