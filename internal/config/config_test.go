package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/dev/video0", cfg.Device)
	assert.Equal(t, "CPU", cfg.Encoder)
	assert.EqualValues(t, 80, cfg.Quality)
}

func TestBindFlagsOverridesEnvDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--device", "/dev/video3", "--quality", "55"}))
	assert.Equal(t, "/dev/video3", cfg.Device)
	assert.Equal(t, 55, cfg.Quality)
}
