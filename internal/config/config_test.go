// config_test.go - Tests for layered configuration loading
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ies-sculpt/backend/internal/solver"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Equal(t, filepath.Join(dir, "ies", "baseIes"), cfg.Project.BaseIESDir)
	assert.Equal(t, filepath.Join(dir, "scenarios", "Matrix.csv"), cfg.Project.MatrixFile)
	assert.Empty(t, cfg.Project.FixtureManifest)
	assert.Equal(t, solver.DefaultOptions(), cfg.SolverOptions())
	assert.Equal(t, "4000K", cfg.LightingOptions().LGPTemperature)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `server:
  port: 9000
project:
  root: /projects/office
  sculpted_dir: out
solver:
  lower: 0
  max_iter: 50
lighting:
  spot_temperature: 3000K
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
	assert.Equal(t, "/projects/office", cfg.Project.Root)
	assert.Equal(t, "/projects/office/out", cfg.Project.SculptedDir)
	assert.Equal(t, "/projects/office/luminaires.txt", cfg.Project.LuminairesFile)
	assert.Equal(t, 0.0, cfg.Solver.Lower)
	assert.Equal(t, 1.0, cfg.Solver.Upper, "unset keys keep their defaults")
	assert.Equal(t, 50, cfg.Solver.MaxIter)
	assert.Equal(t, "3000K", cfg.Lighting.SpotTemperature)
	assert.Equal(t, "4000K", cfg.Lighting.LGPTemperature)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	t.Setenv("SCULPT_SOLVER_MAX_ITER", "25")
	t.Setenv("SCULPT_PROJECT_BASE_IES_DIR", "/fixtures/base")
	t.Setenv("PORT", "7000")
	t.Setenv("DATA_DIR", "/var/sculpt")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Solver.MaxIter)
	assert.Equal(t, "/fixtures/base", cfg.Project.BaseIESDir)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/var/sculpt", cfg.GetDataDir())
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bounds":      "solver:\n  lower: 2\n  upper: 1\n",
		"tolerance":   "solver:\n  tol: 0\n",
		"temperature": "lighting:\n  lgp_temperature: warm\n",
		"format":      "logging:\n  format: xml\n",
		"yaml":        "server: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	t.Run("bounds error is matchable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("solver:\n  lower: 2\n  upper: 1\n"), 0644))
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, solver.ErrBounds)
	})
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("SCULPT_SERVER_PORT"))
	assert.Equal(t, "project.base_ies_dir", envTransform("SCULPT_PROJECT_BASE_IES_DIR"))
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	info, err := os.Stat(cfg.GetUploadDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
