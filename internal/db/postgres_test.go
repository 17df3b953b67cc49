package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfigDefaults(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/clinic", PoolOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	_, ok := cfg.ConnConfig.RuntimeParams["timezone"]
	assert.False(t, ok)
}

func TestPoolConfigAppliesOptions(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/clinic", PoolOptions{
		MaxConns: 32,
		TimeZone: "America/Sao_Paulo",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(32), cfg.MaxConns)
	assert.Equal(t, "America/Sao_Paulo", cfg.ConnConfig.RuntimeParams["timezone"])
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	_, err := poolConfig("postgres://u:p@localhost:notaport/clinic", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres dsn")
}
