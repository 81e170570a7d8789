package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func Test_New_RegistersEveryMetricExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CurrentRound.Set(7)
	m.RoundsCommitted.Inc()
	m.VotesReceived.Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "irohad_current_round_block" {
			found = f
		}
	}
	require.NotNil(t, found)
	require.Equal(t, float64(7), found.Metric[0].GetGauge().GetValue())
}
