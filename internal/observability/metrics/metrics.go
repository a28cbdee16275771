package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	ResultOK                   = "ok"
	ResultRejected             = "rejected"
	ResultBusy                 = "busy"
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

// Metrics holds the charge and lifecycle instruments.
type Metrics struct {
	chargeSkips        *prometheus.CounterVec
	roundingLoss       prometheus.Counter
	computeDuration    *prometheus.HistogramVec
	eventTransitions   *prometheus.CounterVec
	eventLockWait      *prometheus.HistogramVec
	selectionMutations *prometheus.CounterVec
}

// NewRegistry builds the registry served on /metrics.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "dongi"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func New(cfg Config, registry *prometheus.Registry) (*Metrics, error) {
	labels := constLabels(cfg)

	m := &Metrics{
		chargeSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dongi_charge_skips_total",
			Help:        "Cost items excluded from a charge computation, by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		roundingLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "dongi_charge_rounding_loss_irr_total",
			Help:        "IRR dropped by floor division when splitting costs.",
			ConstLabels: labels,
		}),
		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "dongi_charge_compute_duration_seconds",
			Help:        "Latency of loading and computing an event's charges.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"result"}),
		eventTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dongi_event_transitions_total",
			Help:        "Event state change attempts by mode, target state and result.",
			ConstLabels: labels,
		}, []string{"mode", "target", "result"}),
		eventLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "dongi_event_lock_wait_seconds",
			Help:        "Time spent waiting for the per-event lock.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}, []string{"backend", "acquired"}),
		selectionMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dongi_selection_mutations_total",
			Help:        "Selection writes by operation and result.",
			ConstLabels: labels,
		}, []string{"operation", "result"}),
	}

	if registry != nil {
		for _, c := range []prometheus.Collector{
			m.chargeSkips,
			m.roundingLoss,
			m.computeDuration,
			m.eventTransitions,
			m.eventLockWait,
			m.selectionMutations,
		} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) RecordChargeSkip(reason string) {
	if m == nil {
		return
	}
	m.chargeSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddRoundingLoss(irr int64) {
	if m == nil || irr <= 0 {
		return
	}
	m.roundingLoss.Add(float64(irr))
}

func (m *Metrics) ObserveChargeCompute(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.computeDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordTransition(mode, target, result string) {
	if m == nil {
		return
	}
	m.eventTransitions.WithLabelValues(mode, target, result).Inc()
}

func (m *Metrics) ObserveLockWait(backend string, acquired bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	flag := "false"
	if acquired {
		flag = "true"
	}
	m.eventLockWait.WithLabelValues(backend, flag).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordSelectionMutation(operation, result string) {
	if m == nil {
		return
	}
	m.selectionMutations.WithLabelValues(operation, result).Inc()
}

// ClassifyFailure maps an infrastructure error onto a low-cardinality label.
func ClassifyFailure(err error) string {
	if err == nil {
		return ResultOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	return ReasonUnknown
}
