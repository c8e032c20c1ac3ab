package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/stfn345/ats-ebp-validator/internal/media"
)

//go:embed sample_config.toml
var sampleConfig string

// Source is one input named in the configuration file.
type Source struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Validation contains the boundary and timing rules.
type Validation struct {
	// SCTE35ToleranceSeconds is the window around a splice point within
	// which a boundary matches it.
	SCTE35ToleranceSeconds float64 `toml:"scte35_tolerance_seconds"`
	// AnalysisToleranceSeconds is the largest allowed boundary PTS
	// difference between sources.
	AnalysisToleranceSeconds float64 `toml:"analysis_tolerance_seconds"`
	// AudioLagSeconds is how far an audio boundary may trail video.
	AudioLagSeconds    float64 `toml:"audio_lag_seconds"`
	TriggerOnEqual     bool    `toml:"trigger_on_equal"`
	ForceAudioImplicit bool    `toml:"force_audio_implicit"`
	VerifySAP          bool    `toml:"verify_sap"`
}

// Ingest contains input buffering and discovery settings.
type Ingest struct {
	RingBufferBytes  int     `toml:"ring_buffer_bytes"`
	DiscoveryBytes   int64   `toml:"discovery_bytes"`
	DiscoverySeconds float64 `toml:"discovery_seconds"`
	PollIntervalMs   int     `toml:"poll_interval_ms"`
	// DumpDir, when set, receives a copy of every live input.
	DumpDir string `toml:"dump_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Report contains configuration for the final report.
type Report struct {
	Format string `toml:"format"`
	// Output is the report file; empty writes to stdout.
	Output       string `toml:"output"`
	FailExitCode int    `toml:"fail_exit_code"`
}

// Metrics contains configuration for the metrics endpoint.
type Metrics struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr               string `toml:"addr"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
}

// Run contains per-run limits.
type Run struct {
	// DurationSeconds stops the run after this long; zero runs until
	// every input ends.
	DurationSeconds float64 `toml:"duration_seconds"`
}

// Config encapsulates all configuration values for the validator.
type Config struct {
	Sources    []Source   `toml:"source"`
	Validation Validation `toml:"validation"`
	Ingest     Ingest     `toml:"ingest"`
	Logging    Logging    `toml:"logging"`
	Report     Report     `toml:"report"`
	Metrics    Metrics    `toml:"metrics"`
	Run        Run        `toml:"run"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, overrides from the environment and validates a
// configuration file. It returns the resolved path and whether the file
// existed; a missing file yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SCTE35Tolerance returns the splice matching window in 90 kHz ticks.
func (v Validation) SCTE35Tolerance() int64 { return media.Ticks(v.SCTE35ToleranceSeconds) }

// AnalysisTolerance returns the cross-source tolerance in 90 kHz ticks.
func (v Validation) AnalysisTolerance() int64 { return media.Ticks(v.AnalysisToleranceSeconds) }

// AudioLag returns the allowed audio lag in 90 kHz ticks.
func (v Validation) AudioLag() int64 { return media.Ticks(v.AudioLagSeconds) }

// DiscoveryTimeout returns the live discovery budget.
func (i Ingest) DiscoveryTimeout() time.Duration {
	return time.Duration(i.DiscoverySeconds * float64(time.Second))
}

// PollInterval returns the receiver poll interval.
func (i Ingest) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalMs) * time.Millisecond
}

// Duration returns the run limit, zero for none.
func (r Run) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}
