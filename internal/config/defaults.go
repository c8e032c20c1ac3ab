package config

const (
	defaultConfigPath          = "~/.config/ebpvalidator/config.toml"
	defaultProjectConfig       = "ebpvalidator.toml"
	defaultSCTE35Tolerance     = 0.0
	defaultAnalysisTolerance   = 0.0
	defaultAudioLag            = 3.0
	defaultVerifySAP           = true
	defaultRingBufferBytes     = 188 * 7 * 4096
	defaultDiscoveryBytes      = 8 << 20
	defaultDiscoverySeconds    = 5.0
	defaultPollIntervalMs      = 100
	defaultLogFormat           = "text"
	defaultLogLevel            = "info"
	defaultReportFormat        = "table"
	defaultFailExitCode        = 2
	defaultMetricsReadTimeoutS = 5
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Validation: Validation{
			SCTE35ToleranceSeconds:   defaultSCTE35Tolerance,
			AnalysisToleranceSeconds: defaultAnalysisTolerance,
			AudioLagSeconds:          defaultAudioLag,
			VerifySAP:                defaultVerifySAP,
		},
		Ingest: Ingest{
			RingBufferBytes:  defaultRingBufferBytes,
			DiscoveryBytes:   defaultDiscoveryBytes,
			DiscoverySeconds: defaultDiscoverySeconds,
			PollIntervalMs:   defaultPollIntervalMs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Report: Report{
			Format:       defaultReportFormat,
			FailExitCode: defaultFailExitCode,
		},
		Metrics: Metrics{
			ReadTimeoutSeconds: defaultMetricsReadTimeoutS,
		},
	}
}
