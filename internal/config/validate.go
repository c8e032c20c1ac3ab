package config

import (
	"errors"
	"fmt"

	"github.com/stfn345/ats-ebp-validator/internal/ringbuf"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	if c.Run.DurationSeconds < 0 {
		return errors.New("run.duration_seconds must not be negative")
	}
	for i, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("source %d: url must be set", i)
		}
	}
	return nil
}

func (c *Config) validateValidation() error {
	v := c.Validation
	if v.SCTE35ToleranceSeconds < 0 {
		return errors.New("validation.scte35_tolerance_seconds must not be negative")
	}
	if v.AnalysisToleranceSeconds < 0 {
		return errors.New("validation.analysis_tolerance_seconds must not be negative")
	}
	if v.AudioLagSeconds <= 0 {
		return errors.New("validation.audio_lag_seconds must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.RingBufferBytes < ringbuf.PacketSize*7 {
		return fmt.Errorf("ingest.ring_buffer_bytes must hold at least %d bytes", ringbuf.PacketSize*7)
	}
	if c.Ingest.DiscoveryBytes < ringbuf.PacketSize {
		return errors.New("ingest.discovery_bytes must cover at least one packet")
	}
	if c.Ingest.DiscoverySeconds <= 0 {
		return errors.New("ingest.discovery_seconds must be positive")
	}
	if c.Ingest.PollIntervalMs < 0 {
		return errors.New("ingest.poll_interval_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateReport() error {
	switch c.Report.Format {
	case "table", "json":
	default:
		return fmt.Errorf("report.format must be table or json, got %q", c.Report.Format)
	}
	if c.Report.FailExitCode < 0 || c.Report.FailExitCode > 125 {
		return errors.New("report.fail_exit_code must be between 0 and 125")
	}
	return nil
}
