package kernel

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the kernel's Prometheus instrumentation surface (SPEC_FULL.md's
// domain-stack wiring for github.com/prometheus/client_golang). One Metrics
// is built at boot and threaded into every subsystem that wants a counter or
// gauge; nothing here is on any hot-path lock-acquisition sequence.
type Metrics struct {
	SchedSwitches *prometheus.CounterVec
	PageFaults    prometheus.Counter
	Runnable      prometheus.Gauge

	logCommits prometheus.Counter

	bufferHits   prometheus.Counter
	bufferMisses prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchedSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xv6",
			Subsystem: "sched",
			Name:      "switches_total",
			Help:      "Number of times the scheduler handed the cpu to a process.",
		}, []string{"cpu"}),
		PageFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xv6",
			Subsystem: "vm",
			Name:      "page_faults_total",
			Help:      "Number of lazily-resolved mmap page faults.",
		}),
		Runnable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xv6",
			Subsystem: "sched",
			Name:      "runnable_procs",
			Help:      "Number of processes currently in the Runnable state.",
		}),
		logCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xv6",
			Subsystem: "log",
			Name:      "commits_total",
			Help:      "Number of write-ahead-log commits.",
		}),
		bufferHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xv6",
			Subsystem: "bio",
			Name:      "cache_hits_total",
			Help:      "Buffer cache lookups satisfied without a disk read.",
		}),
		bufferMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xv6",
			Subsystem: "bio",
			Name:      "cache_misses_total",
			Help:      "Buffer cache lookups that required a disk read.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.SchedSwitches, m.PageFaults, m.Runnable, m.logCommits, m.bufferHits, m.bufferMisses)
	}
	return m
}

// NewTestMetrics builds a Metrics backed by its own registry, for tests and
// other call sites that don't want to touch prometheus.DefaultRegisterer.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
