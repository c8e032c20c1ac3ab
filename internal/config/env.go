package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EBPV_"

// LoadDotEnv sets environment variables from the given .env files, or
// ".env" when none are given. Variables already set are kept. A missing
// file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// GetEnv returns the value of EBPV_<key>, or fallback if it is unset or
// empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		return s
	}
	return fallback
}

func (c *Config) applyEnv() error {
	c.Logging.Level = GetEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnv("LOG_FORMAT", c.Logging.Format)
	c.Report.Format = GetEnv("REPORT_FORMAT", c.Report.Format)
	c.Report.Output = GetEnv("REPORT_OUTPUT", c.Report.Output)
	c.Metrics.Addr = GetEnv("METRICS_ADDR", c.Metrics.Addr)
	c.Ingest.DumpDir = GetEnv("DUMP_DIR", c.Ingest.DumpDir)

	floats := []struct {
		key string
		dst *float64
	}{
		{"SCTE35_TOLERANCE", &c.Validation.SCTE35ToleranceSeconds},
		{"ANALYSIS_TOLERANCE", &c.Validation.AnalysisToleranceSeconds},
		{"AUDIO_LAG", &c.Validation.AudioLagSeconds},
		{"DURATION", &c.Run.DurationSeconds},
	}
	for _, f := range floats {
		s := GetEnv(f.key, "")
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, f.key, err)
		}
		*f.dst = v
	}

	if s := GetEnv("FAIL_EXIT_CODE", ""); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%sFAIL_EXIT_CODE: %w", EnvPrefix, err)
		}
		c.Report.FailExitCode = v
	}
	if s := GetEnv("FORCE_AUDIO_IMPLICIT", ""); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%sFORCE_AUDIO_IMPLICIT: %w", EnvPrefix, err)
		}
		c.Validation.ForceAudioImplicit = v
	}
	return nil
}
