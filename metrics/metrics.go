package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coursebook"

// Recorder exports booking subsystem counters. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	admissions   *prometheus.CounterVec
	reconciles   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	reminders    *prometheus.CounterVec
	integrity    *prometheus.CounterVec
	tickDuration prometheus.Histogram
}

// NewRecorder registers the collectors on reg (the default registerer when nil).
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Seat admission attempts by result.",
		}, []string{"result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_outcomes_total",
			Help:      "Webhook reconciliation outcomes.",
		}, []string{"outcome", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Booking status transitions applied from the payment ledger.",
		}, []string{"from", "to"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder dispatch results by kind.",
		}, []string{"kind", "result"}),
		integrity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_violations_total",
			Help:      "Ledger anomalies surfaced for operator review.",
		}, []string{"reason"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_tick_duration_seconds",
			Help:      "Duration of a reminder scheduler run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	if r.admissions, err = register(reg, r.admissions); err != nil {
		return nil, err
	}
	if r.reconciles, err = register(reg, r.reconciles); err != nil {
		return nil, err
	}
	if r.transitions, err = register(reg, r.transitions); err != nil {
		return nil, err
	}
	if r.reminders, err = register(reg, r.reminders); err != nil {
		return nil, err
	}
	if r.integrity, err = register(reg, r.integrity); err != nil {
		return nil, err
	}
	if r.tickDuration, err = register(reg, r.tickDuration); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered so several recorders can share the default registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register booking metric: %w", err)
	}
	return c, nil
}

func (r *Recorder) Admission(result string) {
	if r == nil {
		return
	}
	r.admissions.WithLabelValues(result).Inc()
}

func (r *Recorder) Reconcile(outcome, reason string) {
	if r == nil {
		return
	}
	r.reconciles.WithLabelValues(outcome, reason).Inc()
}

func (r *Recorder) Transition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) Reminder(kind, result string) {
	if r == nil {
		return
	}
	r.reminders.WithLabelValues(kind, result).Inc()
}

// IntegrityViolation counts anomalies that need manual reconciliation.
func (r *Recorder) IntegrityViolation(reason string) {
	if r == nil {
		return
	}
	r.integrity.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveTick(seconds float64) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(seconds)
}
