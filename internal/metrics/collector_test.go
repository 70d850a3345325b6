// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics_test

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/metrics"
)

type collectorSuite struct {
	testing.IsolationSuite

	hub       *pubsub.SimpleHub
	collector *metrics.Collector
}

var _ = gc.Suite(&collectorSuite{})

func (s *collectorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.hub = pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("test.hub"),
	})
	s.collector = metrics.NewCollector()
	unsub := s.collector.Subscribe(s.hub)
	s.AddCleanup(func(*gc.C) { unsub() })
}

// publish waits for every subscriber to handle data.
func (s *collectorSuite) publish(c *gc.C, topic string, data interface{}) {
	s.hub.Publish(topic, data)()
}

func (s *collectorSuite) TestRegisters(c *gc.C) {
	registry := prometheus.NewPedanticRegistry()
	c.Assert(registry.Register(s.collector), jc.ErrorIsNil)
}

func (s *collectorSuite) TestCartOutcomes(c *gc.C) {
	detected := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.publish(c, cart.VerifiedTopic, cart.Event{
		MountPath:  "/media/a",
		State:      cart.Trusted,
		DetectedAt: detected,
		Time:       detected.Add(2 * time.Second),
	})
	for i := 0; i < 2; i++ {
		s.publish(c, cart.RejectedTopic, cart.Event{
			MountPath:  "/media/b",
			State:      cart.Rejected,
			Reason:     cart.ReasonNoMatchingSigner,
			DetectedAt: detected,
			Time:       detected.Add(time.Second),
		})
	}

	values := gather(c, s.collector)
	c.Check(values[`cartd_cart_outcomes_total{reason=none,state=trusted}`], gc.Equals, 1.0)
	c.Check(values[`cartd_cart_outcomes_total{reason=NoMatchingSigner,state=rejected}`], gc.Equals, 2.0)
	c.Check(values[`cartd_cart_decision_seconds`], gc.Equals, 3.0)
}

func (s *collectorSuite) TestTrustReloads(c *gc.C) {
	now := time.Unix(1790000000, 0)
	s.publish(c, cart.TrustReloadedTopic, cart.TrustReload{Identities: 3, Time: now})

	values := gather(c, s.collector)
	c.Check(values[`cartd_trust_identities`], gc.Equals, 3.0)
	c.Check(values[`cartd_trust_available`], gc.Equals, 1.0)
	c.Check(values[`cartd_trust_reloads_total{result=success}`], gc.Equals, 1.0)
	c.Check(values[`cartd_trust_last_reload_timestamp_seconds`], gc.Equals, 1790000000.0)

	s.publish(c, cart.TrustReloadedTopic, cart.TrustReload{
		Err:  errors.Annotate(cart.ErrTrustStore, "line 1"),
		Time: now.Add(time.Minute),
	})

	values = gather(c, s.collector)
	c.Check(values[`cartd_trust_identities`], gc.Equals, 0.0)
	c.Check(values[`cartd_trust_available`], gc.Equals, 0.0)
	c.Check(values[`cartd_trust_reloads_total{result=failure}`], gc.Equals, 1.0)
}

func (s *collectorSuite) TestIgnoresUnexpectedData(c *gc.C) {
	s.publish(c, cart.VerifiedTopic, "nonsense")
	s.publish(c, cart.TrustReloadedTopic, 42)

	values := gather(c, s.collector)
	for key := range values {
		c.Check(strings.HasPrefix(key, "cartd_cart_outcomes_total"), jc.IsFalse)
		c.Check(strings.HasPrefix(key, "cartd_trust_reloads_total"), jc.IsFalse)
	}
}

// gather returns every sample of col keyed by name and sorted labels.
// Histograms are reported by their sample count.
func gather(c *gc.C, col prometheus.Collector) map[string]float64 {
	registry := prometheus.NewPedanticRegistry()
	c.Assert(registry.Register(col), jc.ErrorIsNil)
	families, err := registry.Gather()
	c.Assert(err, jc.ErrorIsNil)

	values := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", l.GetName(), l.GetValue()))
			}
			sort.Strings(labels)
			key := family.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.Counter != nil:
				values[key] = m.GetCounter().GetValue()
			case m.Gauge != nil:
				values[key] = m.GetGauge().GetValue()
			case m.Histogram != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}
