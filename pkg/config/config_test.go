package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, BackendSim, cfg.Backend)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 1, cfg.ToleranceSamples)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SLICELAB_BACKEND", "docker")
	t.Setenv("SLICELAB_PROBE_TIMEOUT", "3s")
	t.Setenv("SLICELAB_TOLERANCE_SAMPLES", "2")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, BackendDocker, cfg.Backend)
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 2, cfg.ToleranceSamples)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slicelab.yaml")
	doc := "backend: docker\nimage: nginx\ncontroller: tcp:127.0.0.1:6633\nprobe_timeout: 500ms\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	v := New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "nginx", cfg.Image)
	assert.Equal(t, "tcp:127.0.0.1:6633", cfg.Controller)
	assert.Equal(t, 500*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Backend: BackendSim, Image: "x", ProbeTimeout: time.Second, ToleranceSamples: 1, LogLevel: "info"}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Backend = "vagrant"
	assert.ErrorContains(t, c.Validate(), "unknown backend")

	c = base()
	c.ProbeTimeout = 0
	assert.Error(t, c.Validate())

	c = base()
	c.ToleranceSamples = -1
	assert.Error(t, c.Validate())

	c = base()
	c.LogLevel = "loud"
	assert.Error(t, c.Validate())

	c = base()
	c.Backend, c.Image = BackendDocker, ""
	assert.Error(t, c.Validate())
}
