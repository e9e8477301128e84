package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewCounter_ReturnsExistingOnDuplicate(t *testing.T) {
	cfg := &Config{Enabled: true, Namespace: "bifang"}
	cfg.setDefaults()
	c := NewComponent(cfg)

	a := c.NewCounter("dispatch_total", "dispatch outcomes", []string{"outcome"})
	b := c.NewCounter("dispatch_total", "dispatch outcomes", []string{"outcome"})
	a.WithLabelValues("dispatched").Inc()
	b.WithLabelValues("dispatched").Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(a.WithLabelValues("dispatched")))
	require.Same(t, C(), c)
}
