package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// PromCounterValue gathers reg and returns the value of the counter name
// whose label values equal labels, in label order. It fails the test if the
// series does not exist.
func PromCounterValue(t testing.TB, reg prometheus.Gatherer, name string, labels ...string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, labels...)
	require.NotNil(t, m.GetCounter(), "%s is not a counter", name)
	return m.GetCounter().GetValue()
}

// PromGaugeValue is PromCounterValue for gauges.
func PromGaugeValue(t testing.TB, reg prometheus.Gatherer, name string, labels ...string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, labels...)
	require.NotNil(t, m.GetGauge(), "%s is not a gauge", name)
	return m.GetGauge().GetValue()
}

func findMetric(t testing.TB, reg prometheus.Gatherer, name string, labels ...string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricsLoop:
		for _, m := range family.GetMetric() {
			if len(labels) != len(m.GetLabel()) {
				continue
			}
			for i, lv := range labels {
				if lv != m.GetLabel()[i].GetValue() {
					continue metricsLoop
				}
			}
			return m
		}
	}
	require.Failf(t, "metric not found", "%s%v", name, labels)
	return nil
}
