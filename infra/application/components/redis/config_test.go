package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFactory_DefaultsAndValidation(t *testing.T) {
	cfg := &Config{Enabled: true}
	comp, err := NewFactory().Create(cfg)
	require.NoError(t, err)
	require.NotNil(t, comp)
	require.Equal(t, "single", cfg.Mode)
	require.Equal(t, []string{"127.0.0.1:6379"}, cfg.Addresses)
	require.Equal(t, 20, cfg.PoolSize)
	require.Equal(t, 5*time.Second, cfg.DialTimeout)

	_, err = NewFactory().Create(&Config{Enabled: true, Mode: "sentinel"})
	require.Error(t, err)
	_, err = NewFactory().Create(&Config{Enabled: true, Mode: "weird"})
	require.Error(t, err)
}
