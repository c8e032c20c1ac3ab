package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stfn345/ats-ebp-validator/internal/media"
	"github.com/stfn345/ats-ebp-validator/internal/metrics"
	"github.com/stfn345/ats-ebp-validator/internal/report"
	"github.com/stfn345/ats-ebp-validator/internal/session"
)

type validateFlags struct {
	format             string
	output             string
	scte35Tolerance    float64
	analysisTolerance  float64
	duration           time.Duration
	metricsAddr        string
	dumpDir            string
	failExitCode       int
	triggerOnEqual     bool
	forceAudioImplicit bool
	noVerifySAP        bool
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var f validateFlags

	cmd := &cobra.Command{
		Use:   "validate [inputs...]",
		Short: "Validate boundary and splice signaling across inputs",
		Long: `Validate reads every input in parallel and checks that EBP boundaries
are signaled where configured, line up across sources and match SCTE-35
splice points.

Inputs are file paths, udp://[source@]host:port[?iface=name] or
srt://host:port[?streamid=id&mode=caller|listener]. Without arguments the
sources of the configuration file are used.

Exit status is 0 when every stream passes, 1 when an input could not be
set up, and the configured fail code (default 2) on validation failures.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, ctx, &f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", "", "Report format: table or json")
	fl.StringVarP(&f.output, "output", "o", "", "Write the report to this file instead of stdout")
	fl.Float64Var(&f.scte35Tolerance, "scte35-tolerance", 0, "Splice point matching window in seconds")
	fl.Float64Var(&f.analysisTolerance, "analysis-tolerance", 0, "Allowed boundary PTS difference between sources in seconds")
	fl.DurationVar(&f.duration, "duration", 0, "Stop after this long (live inputs)")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	fl.StringVar(&f.dumpDir, "dump-dir", "", "Mirror live inputs into this directory")
	fl.IntVar(&f.failExitCode, "fail-exit-code", 0, "Exit status for validation failures")
	fl.BoolVar(&f.triggerOnEqual, "trigger-on-equal", false, "Fire implicit boundaries at a PTS equal to the trigger")
	fl.BoolVar(&f.forceAudioImplicit, "force-audio-implicit", false, "Derive audio boundaries from video even when audio signals EBP")
	fl.BoolVar(&f.noVerifySAP, "no-verify-sap", false, "Skip the stream access point check at video boundaries")
	return cmd
}

func runValidate(cmd *cobra.Command, ctx *commandContext, f *validateFlags, args []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	log, err := ctx.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	set := cmd.Flags().Changed
	if set("format") {
		cfg.Report.Format = f.format
	}
	if set("output") {
		cfg.Report.Output = f.output
	}
	if set("fail-exit-code") {
		cfg.Report.FailExitCode = f.failExitCode
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if set("dump-dir") {
		cfg.Ingest.DumpDir = f.dumpDir
	}
	if set("scte35-tolerance") {
		cfg.Validation.SCTE35ToleranceSeconds = f.scte35Tolerance
	}
	if set("analysis-tolerance") {
		cfg.Validation.AnalysisToleranceSeconds = f.analysisTolerance
	}
	if set("duration") {
		cfg.Run.DurationSeconds = f.duration.Seconds()
	}
	if set("trigger-on-equal") {
		cfg.Validation.TriggerOnEqual = f.triggerOnEqual
	}
	if set("force-audio-implicit") {
		cfg.Validation.ForceAudioImplicit = f.forceAudioImplicit
	}
	if set("no-verify-sap") {
		cfg.Validation.VerifySAP = !f.noVerifySAP
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	opts := session.OptionsFromConfig(cfg)
	if len(args) > 0 {
		opts.Inputs = opts.Inputs[:0]
		for _, a := range args {
			opts.Inputs = append(opts.Inputs, session.Input{Name: a, URL: a})
		}
	}
	if len(opts.Inputs) == 0 {
		return errors.New("no inputs: pass them as arguments or list [[source]] entries in the configuration")
	}
	if cfg.Metrics.Addr != "" {
		opts.Metrics = metrics.New()
	}

	log.Info("validation starting",
		"version", version,
		"inputs", len(opts.Inputs),
		"config", ctx.configPath,
		"scte35_tolerance", media.Seconds(opts.Boundary.SCTE35Tolerance),
		"analysis_tolerance", media.Seconds(opts.AnalysisTolerance),
	)

	r, err := session.Run(cmd.Context(), opts, log)
	if err != nil && r == nil {
		return err
	}
	if err != nil {
		log.Error("run error", "error", err)
	}

	if err := writeReport(cmd.OutOrStdout(), cfg.Report.Output, r, format); err != nil {
		return err
	}
	if code := r.ExitCode(cfg.Report.FailExitCode); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func writeReport(stdout io.Writer, path string, r *report.Report, format report.Format) error {
	if path == "" {
		return report.Write(stdout, r, format, report.ShouldColorize(stdout))
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(file, r, format, false); err != nil {
		file.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
