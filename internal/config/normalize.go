package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	if c.Report.Format == "" {
		c.Report.Format = defaultReportFormat
	}
	var err error
	if c.Report.Output, err = expandPath(strings.TrimSpace(c.Report.Output)); err != nil {
		return fmt.Errorf("report.output: %w", err)
	}
	if c.Ingest.DumpDir, err = expandPath(strings.TrimSpace(c.Ingest.DumpDir)); err != nil {
		return fmt.Errorf("ingest.dump_dir: %w", err)
	}

	if c.Ingest.PollIntervalMs == 0 {
		c.Ingest.PollIntervalMs = defaultPollIntervalMs
	}
	if c.Metrics.ReadTimeoutSeconds == 0 {
		c.Metrics.ReadTimeoutSeconds = defaultMetricsReadTimeoutS
	}
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)

	for i := range c.Sources {
		c.Sources[i].Name = strings.TrimSpace(c.Sources[i].Name)
		c.Sources[i].URL = strings.TrimSpace(c.Sources[i].URL)
		if c.Sources[i].Name == "" {
			c.Sources[i].Name = c.Sources[i].URL
		}
	}
	return nil
}
