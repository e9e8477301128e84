package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	prom "github.com/timelyrain333/bifang-sub000/infra/application/components/prometheus"
)

func TestMetrics_RecordAgainstGlobalComponent(t *testing.T) {
	off := false
	c := prom.NewComponent(&prom.Config{Enabled: true, CollectGoMetrics: &off, CollectProcess: &off})

	Dispatch("dispatched")
	Dispatch("dispatched")
	Execution("noop", "success", 2*time.Second)
	ReaperRepaired(3)
	ReaperRepaired(0)
	NotifyDropped()

	s := current()
	require.Equal(t, 2.0, testutil.ToFloat64(s.dispatch.WithLabelValues("dispatched")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.executions.WithLabelValues("noop", "success")))
	require.Equal(t, 3.0, testutil.ToFloat64(s.reaperRepaired.WithLabelValues()))
	require.Equal(t, 1.0, testutil.ToFloat64(s.notifyDropped.WithLabelValues()))

	n, err := testutil.GatherAndCount(c.Registry(), "bifang_execution_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
