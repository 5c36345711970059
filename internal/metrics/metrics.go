// Package metrics records the outcome of a scan as Prometheus gauges and
// writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is everything a finished run reports.
type Snapshot struct {
	Report       *models.Report
	Suppressed   int
	ExpiredRules int
	ExitCode     int
	Duration     time.Duration
	Interrupted  bool
}

// Recorder owns a private registry so nothing leaks into the default one.
type Recorder struct {
	registry *prometheus.Registry

	findings      *prometheus.GaugeVec
	skillsScanned prometheus.Gauge
	suppressed    prometheus.Gauge
	expiredRules  prometheus.Gauge
	gateExitCode  prometheus.Gauge
	duration      prometheus.Gauge
	interrupted   prometheus.Gauge
}

func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "skillvet_findings",
				Help: "Findings remaining after allowlist filtering, by severity",
			},
			[]string{"severity"},
		),
		skillsScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_skills_scanned",
			Help: "Number of skills scanned in the last run",
		}),
		suppressed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_suppressed_findings",
			Help: "Findings suppressed by allowlist rules",
		}),
		expiredRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_expired_allowlist_rules",
			Help: "Enabled allowlist rules past their expiry",
		}),
		gateExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_gate_exit_code",
			Help: "Exit code chosen by the gate",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_scan_duration_seconds",
			Help: "Wall clock duration of the run",
		}),
		interrupted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillvet_interrupted",
			Help: "1 if the run was interrupted before finishing",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.findings, r.skillsScanned, r.suppressed, r.expiredRules,
		r.gateExitCode, r.duration, r.interrupted,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return r, nil
}

// Observe overwrites every gauge from s.
func (r *Recorder) Observe(s Snapshot) {
	var counts models.SeverityCounts
	if s.Report != nil {
		counts = s.Report.Summary.FindingsBySeverity
		r.skillsScanned.Set(float64(s.Report.Summary.TotalSkillsScanned))
	} else {
		r.skillsScanned.Set(0)
	}

	r.findings.WithLabelValues("critical").Set(float64(counts.Critical))
	r.findings.WithLabelValues("high").Set(float64(counts.High))
	r.findings.WithLabelValues("medium").Set(float64(counts.Medium))
	r.findings.WithLabelValues("low").Set(float64(counts.Low))
	r.findings.WithLabelValues("info").Set(float64(counts.Info))

	r.suppressed.Set(float64(s.Suppressed))
	r.expiredRules.Set(float64(s.ExpiredRules))
	r.gateExitCode.Set(float64(s.ExitCode))
	r.duration.Set(s.Duration.Seconds())
	if s.Interrupted {
		r.interrupted.Set(1)
	} else {
		r.interrupted.Set(0)
	}
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
