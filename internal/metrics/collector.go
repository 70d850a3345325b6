// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics exposes the outcomes of cart verification and trust
// store reloads as prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/cartd/core/cart"
)

const metricsNamespace = "cartd"

// Hub is the subset of the pubsub hub the collector listens on.
type Hub interface {
	Subscribe(topic string, handler func(string, interface{})) func()
}

// Collector is a prometheus.Collector that collects metrics about
// verified and rejected carts and the state of the trust store.
type Collector struct {
	outcomes         *prometheus.CounterVec
	verifyDuration   prometheus.Histogram
	trustIdentities  prometheus.Gauge
	trustAvailable   prometheus.Gauge
	trustReloads     *prometheus.CounterVec
	lastReloadSecond prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cart_outcomes_total",
				Help:      "The number of carts that reached a terminal state.",
			}, []string{"state", "reason"},
		),
		verifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "cart_decision_seconds",
				Help:      "The time from attach to a trusted or rejected decision.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		trustIdentities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "trust_identities",
				Help:      "The number of signers in the trust store.",
			},
		),
		trustAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "trust_available",
				Help:      "1 when the last trust store load succeeded, 0 otherwise.",
			},
		),
		trustReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "trust_reloads_total",
				Help:      "The number of trust store reloads.",
			}, []string{"result"},
		),
		lastReloadSecond: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "trust_last_reload_timestamp_seconds",
				Help:      "When the trust store was last reloaded.",
			},
		),
	}
}

// Subscribe feeds the collector from the hub until the returned func is
// called.
func (c *Collector) Subscribe(hub Hub) func() {
	unsubs := []func(){
		hub.Subscribe(cart.VerifiedTopic, c.onCartEvent),
		hub.Subscribe(cart.RejectedTopic, c.onCartEvent),
		hub.Subscribe(cart.TrustReloadedTopic, c.onTrustReload),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (c *Collector) onCartEvent(_ string, data interface{}) {
	ev, ok := data.(cart.Event)
	if !ok {
		return
	}
	reason := string(ev.Reason)
	if ev.Reason == cart.ReasonNone {
		reason = "none"
	}
	c.outcomes.WithLabelValues(string(ev.State), reason).Inc()
	if !ev.DetectedAt.IsZero() && !ev.Time.Before(ev.DetectedAt) {
		c.verifyDuration.Observe(ev.Time.Sub(ev.DetectedAt).Seconds())
	}
}

func (c *Collector) onTrustReload(_ string, data interface{}) {
	reload, ok := data.(cart.TrustReload)
	if !ok {
		return
	}
	c.trustIdentities.Set(float64(reload.Identities))
	if reload.Err != nil {
		c.trustAvailable.Set(0)
		c.trustReloads.WithLabelValues("failure").Inc()
	} else {
		c.trustAvailable.Set(1)
		c.trustReloads.WithLabelValues("success").Inc()
	}
	if !reload.Time.IsZero() {
		c.lastReloadSecond.Set(float64(reload.Time.UnixNano()) / 1e9)
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.outcomes.Describe(ch)
	c.verifyDuration.Describe(ch)
	c.trustIdentities.Describe(ch)
	c.trustAvailable.Describe(ch)
	c.trustReloads.Describe(ch)
	c.lastReloadSecond.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.outcomes.Collect(ch)
	c.verifyDuration.Collect(ch)
	c.trustIdentities.Collect(ch)
	c.trustAvailable.Collect(ch)
	c.trustReloads.Collect(ch)
	c.lastReloadSecond.Collect(ch)
}
