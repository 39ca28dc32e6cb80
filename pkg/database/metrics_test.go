package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describeAll(c prometheus.Collector) []string {
	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)

	var out []string
	for d := range ch {
		out = append(out, d.String())
	}
	return out
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "reviews")
	require.NotNil(t, c)

	descs := describeAll(c)
	assert.Len(t, descs, 8)

	joined := strings.Join(descs, "\n")
	for _, name := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_count_total",
		"db_pool_acquire_duration_seconds_total",
		"db_pool_canceled_acquire_count_total",
		"db_pool_empty_acquire_count_total",
	} {
		assert.Contains(t, joined, name)
	}
}

func TestPoolStatsCollector_NilPoolCollectsNothing(t *testing.T) {
	c := NewPoolStatsCollector(nil, "reviews")

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}

func TestRegisterPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolMetrics(reg, nil, "reviews"))
	// A second collector with identical descriptors is rejected.
	assert.Error(t, RegisterPoolMetrics(reg, nil, "reviews"))
}
