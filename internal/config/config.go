// Package config provides layered YAML configuration for the sculpt CLI and server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ies-sculpt/backend/internal/cct"
	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/sculpt"
	"github.com/ies-sculpt/backend/internal/solver"
)

// DefaultFileName is the config file looked up next to the executable.
const DefaultFileName = "sculpt.yaml"

// EnvPrefix prefixes environment overrides: SCULPT_SERVER_PORT -> server.port.
const EnvPrefix = "SCULPT_"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Storage    StorageConfig    `koanf:"storage" yaml:"storage"`
	Processing ProcessingConfig `koanf:"processing" yaml:"processing"`
	Project    ProjectConfig    `koanf:"project" yaml:"project"`
	Solver     SolverConfig     `koanf:"solver" yaml:"solver"`
	Lighting   LightingConfig   `koanf:"lighting" yaml:"lighting"`
	Logging    LoggingConfig    `koanf:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `koanf:"port" yaml:"port"`
	BindAddress          string `koanf:"bind_address" yaml:"bind_address"`
	EnableCORS           bool   `koanf:"enable_cors" yaml:"enable_cors"`
	AllowOrigins         string `koanf:"allow_origins" yaml:"allow_origins"`
	ReadTimeout          int    `koanf:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout         int    `koanf:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	IdleTimeout          int    `koanf:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	BodyLimit            string `koanf:"body_limit" yaml:"body_limit"`
	EnableRequestLogging bool   `koanf:"enable_request_logging" yaml:"enable_request_logging"`
	AllowFileDeletion    bool   `koanf:"allow_file_deletion" yaml:"allow_file_deletion"`
}

// StorageConfig contains file storage settings for the API server
type StorageConfig struct {
	DataDirectory    string `koanf:"data_directory" yaml:"data_directory"`
	UploadsDirectory string `koanf:"uploads_directory" yaml:"uploads_directory"`
}

// ProcessingConfig contains run housekeeping settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int  `koanf:"session_timeout_minutes" yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int  `koanf:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
	EnableCompression      bool `koanf:"enable_compression" yaml:"enable_compression"`
	CompressionLevel       int  `koanf:"compression_level" yaml:"compression_level"`
}

// ProjectConfig locates the inputs and outputs of a sculpt project.
// Relative entries are resolved against Root.
type ProjectConfig struct {
	Root           string `koanf:"root" yaml:"root"`
	BaseIESDir     string `koanf:"base_ies_dir" yaml:"base_ies_dir"`
	SculptedDir    string `koanf:"sculpted_dir" yaml:"sculpted_dir"`
	ScenariosDir   string `koanf:"scenarios_dir" yaml:"scenarios_dir"`
	ResultsDir     string `koanf:"results_dir" yaml:"results_dir"`
	GridFile       string `koanf:"grid_file" yaml:"grid_file"`
	LuminairesFile string `koanf:"luminaires_file" yaml:"luminaires_file"`
	MatrixFile     string `koanf:"matrix_file" yaml:"matrix_file"`
	// FixtureManifest overrides <base_ies_dir>/fixture.yaml when set.
	FixtureManifest string `koanf:"fixture_manifest" yaml:"fixture_manifest"`
}

// SolverConfig bounds and tunes the scale-factor fit
type SolverConfig struct {
	Lower   float64 `koanf:"lower" yaml:"lower"`
	Upper   float64 `koanf:"upper" yaml:"upper"`
	Tol     float64 `koanf:"tol" yaml:"tol"`
	MaxIter int     `koanf:"max_iter" yaml:"max_iter"`
}

// LightingConfig holds the light colours recorded for the renderer
type LightingConfig struct {
	LGPTemperature  string `koanf:"lgp_temperature" yaml:"lgp_temperature"`
	SpotTemperature string `koanf:"spot_temperature" yaml:"spot_temperature"`
}

// LoggingConfig selects the log level and output format
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	opts := solver.DefaultOptions()
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "512M",
			EnableRequestLogging: true,
			AllowFileDeletion:    true,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  60,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Project: ProjectConfig{
			Root:           ".",
			BaseIESDir:     "ies/baseIes",
			SculptedDir:    "ies/sculpted",
			ScenariosDir:   "scenarios",
			ResultsDir:     "results/gridBased",
			GridFile:       "grid/SensorGrid.pts",
			LuminairesFile: "luminaires.txt",
			MatrixFile:     "scenarios/Matrix.csv",
		},
		Solver: SolverConfig{
			Lower:   opts.Lower,
			Upper:   opts.Upper,
			Tol:     opts.Tol,
			MaxIter: opts.MaxIter,
		},
		Lighting: LightingConfig{
			LGPTemperature:  cct.Default,
			SpotTemperature: cct.Default,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. Values are layered defaults, then file, then SCULPT_*
// environment variables.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := DefaultConfig().Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config := &AppConfig{}
	if err := k.Unmarshal("", config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// envTransform maps SCULPT_PROJECT_BASE_IES_DIR to project.base_ies_dir.
// Only the first underscore separates the section from the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# IES Sculpt configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides keeps the short PORT and DATA_DIR variables
// used by container deployments.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	abs := func(base, p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	c.Storage.DataDirectory = abs(configDir, c.Storage.DataDirectory)
	c.Storage.UploadsDirectory = abs(configDir, c.Storage.UploadsDirectory)

	c.Project.Root = abs(configDir, c.Project.Root)
	root := c.Project.Root
	c.Project.BaseIESDir = abs(root, c.Project.BaseIESDir)
	c.Project.SculptedDir = abs(root, c.Project.SculptedDir)
	c.Project.ScenariosDir = abs(root, c.Project.ScenariosDir)
	c.Project.ResultsDir = abs(root, c.Project.ResultsDir)
	c.Project.GridFile = abs(root, c.Project.GridFile)
	c.Project.LuminairesFile = abs(root, c.Project.LuminairesFile)
	c.Project.MatrixFile = abs(root, c.Project.MatrixFile)
	c.Project.FixtureManifest = abs(root, c.Project.FixtureManifest)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Solver.Lower > c.Solver.Upper {
		return fmt.Errorf("%w: solver lower %g exceeds upper %g", solver.ErrBounds, c.Solver.Lower, c.Solver.Upper)
	}
	if c.Solver.Tol <= 0 {
		return fmt.Errorf("solver tol must be positive, got %g", c.Solver.Tol)
	}
	if c.Solver.MaxIter <= 0 {
		return fmt.Errorf("solver max_iter must be positive, got %d", c.Solver.MaxIter)
	}
	if _, err := cct.Parse(c.Lighting.LGPTemperature); err != nil {
		return fmt.Errorf("lighting.lgp_temperature: %w", err)
	}
	if _, err := cct.Parse(c.Lighting.SpotTemperature); err != nil {
		return fmt.Errorf("lighting.spot_temperature: %w", err)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SolverOptions converts the solver section.
func (c *AppConfig) SolverOptions() solver.Options {
	return solver.Options{
		Lower:   c.Solver.Lower,
		Upper:   c.Solver.Upper,
		Tol:     c.Solver.Tol,
		MaxIter: c.Solver.MaxIter,
	}
}

// LightingOptions converts the lighting section.
func (c *AppConfig) LightingOptions() sculpt.Lighting {
	return sculpt.Lighting{
		LGPTemperature:  c.Lighting.LGPTemperature,
		SpotTemperature: c.Lighting.SpotTemperature,
	}
}

// LoggingOptions converts the logging section.
func (c *AppConfig) LoggingOptions() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	return cfg
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
