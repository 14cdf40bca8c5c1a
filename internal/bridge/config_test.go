package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConfigurationNominalCase(t *testing.T) {
	cfg, err := DeriveConfiguration(48000, 128, 256, 48000)
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.NominalRatio)
	assert.InDelta(t, 0.95, cfg.RatioMin, 1e-9)
	assert.InDelta(t, 1.05, cfg.RatioMax, 1e-9)
	assert.Equal(t, 256+int(1.5*128), cfg.Kdel)
	assert.Equal(t, 128, cfg.Bufsize)
}

func TestDeriveConfigurationUpsampling(t *testing.T) {
	cfg, err := DeriveConfiguration(192000, 128, 256, 48000)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.NominalRatio)
	assert.Less(t, cfg.NominalRatio, MaxRatioBound)
}

func TestDeriveConfigurationRejectsOversizedBuffer(t *testing.T) {
	_, err := DeriveConfiguration(48000, 512, 256, 48000)
	require.Error(t, err)

	var rejected *ConfigRejectedError
	assert.ErrorAs(t, err, &rejected)
}
