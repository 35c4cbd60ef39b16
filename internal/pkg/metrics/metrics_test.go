package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGauge(v float64) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "replace_check", Help: "Replace test gauge."})
	g.Set(v)
	return g
}

func TestReplace_SwapsEarlierCollector(t *testing.T) {
	first, second := newGauge(1), newGauge(2)
	t.Cleanup(func() { prometheus.Unregister(second) })

	require.NoError(t, Replace(first))
	require.NoError(t, Replace(second))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var got []float64
	for _, mf := range families {
		if mf.GetName() == "tenantdesk_replace_check" {
			for _, m := range mf.GetMetric() {
				got = append(got, m.GetGauge().GetValue())
			}
		}
	}
	assert.Equal(t, []float64{2}, got)
}
