// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes registry state as Prometheus metrics. It is fed
// by the registries' status-change events plus periodic snapshot counts.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haroldDOTsh/fulcrum/pkg/registry"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/evacuation"
)

// Metrics is the metric set for one registry core.
type Metrics struct {
	registry *prometheus.Registry

	entries        *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	evacuations    *prometheus.CounterVec
	profileApplies *prometheus.CounterVec
}

// New creates the metric set on its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fulcrum_registry_entries",
			Help: "Registry entries by kind and status.",
		}, []string{"kind", "status"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulcrum_status_transitions_total",
			Help: "Status transitions by kind and edge.",
		}, []string{"kind", "from", "to"}),
		evacuations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulcrum_evacuations_total",
			Help: "Settled evacuations by outcome.",
		}, []string{"outcome"}),
		profileApplies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fulcrum_profile_applies_total",
			Help: "Network profile apply attempts by result.",
		}, []string{"result"}),
	}
}

// OnStatusChanged implements registry.StatusListener.
func (m *Metrics) OnStatusChanged(kind registry.Kind, _ string, from, to registry.Status) {
	m.transitions.WithLabelValues(string(kind), from.String(), to.String()).Inc()
}

// OnEvacuationSettled implements evacuation.OutcomeListener.
func (m *Metrics) OnEvacuationSettled(_ registry.Kind, _ string, outcome evacuation.Outcome) {
	m.evacuations.WithLabelValues(string(outcome)).Inc()
}

// RecordProfileApply counts one apply attempt.
func (m *Metrics) RecordProfileApply(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.profileApplies.WithLabelValues(result).Inc()
}

// SetEntryCounts publishes snapshot counts for one registry kind.
func (m *Metrics) SetEntryCounts(kind registry.Kind, counts map[registry.Status]int) {
	for _, status := range []registry.Status{
		registry.StatusAvailable,
		registry.StatusEvacuating,
		registry.StatusUnavailable,
		registry.StatusDead,
	} {
		m.entries.WithLabelValues(string(kind), status.String()).Set(float64(counts[status]))
	}
}

// Handler serves the metric set in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
