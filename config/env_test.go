package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-fidder/config"
)

// Not parallel: these tests change the process environment.

func TestLoadFromEnvFile(t *testing.T) {
	t.Setenv("FIDDER_MODE", "")
	require.NoError(t, os.Unsetenv("FIDDER_MODE"))

	envFile := filepath.Join(t.TempDir(), "fidder.env")
	content := "FIDDER_INPUT_MANIFEST=input.json\n" +
		"FIDDER_PROB_THRESHOLD=0.75\n" +
		"FIDDER_GPU_LIST=0 1\n" +
		"FIDDER_STREAMING=true\n" +
		"FIDDER_POLL_INTERVAL_SEC=3\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	for _, key := range []string{
		"FIDDER_INPUT_MANIFEST", "FIDDER_PROB_THRESHOLD", "FIDDER_GPU_LIST",
		"FIDDER_STREAMING", "FIDDER_POLL_INTERVAL_SEC",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	env, err := config.Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "dev", env.Mode)
	assert.Equal(t, "input.json", env.InputManifest)
	assert.InDelta(t, 0.75, env.ProbThreshold, 1e-9)
	assert.Equal(t, "0 1", env.GPUList)
	assert.True(t, env.Streaming)
	assert.Equal(t, 3*time.Second, env.PollInterval())
	assert.Equal(t, 2, env.Parallelism)
	assert.Equal(t, "./fidder-run", env.WorkDir)
	assert.True(t, env.Resume)
	assert.Contains(t, env.String(), "InputManifest")
}

func TestLoadFromHostEnvironment(t *testing.T) {
	t.Setenv("FIDDER_MODE", "prod")
	t.Setenv("FIDDER_INPUT_MANIFEST", "/data/input.json")
	t.Setenv("FIDDER_DO_EVEN_ODD", "true")

	env, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "prod", env.Mode)
	assert.True(t, env.DoEvenOdd)
}

func TestLoadMissingManifest(t *testing.T) {
	t.Setenv("FIDDER_MODE", "prod")
	t.Setenv("FIDDER_INPUT_MANIFEST", "")
	require.NoError(t, os.Unsetenv("FIDDER_INPUT_MANIFEST"))

	_, err := config.Load("")
	require.Error(t, err)
}
