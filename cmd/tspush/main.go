// Command tspush sends a transport stream file to a udp:// or srt://
// endpoint in real time, for feeding live inputs of ebpvalidator.
//
//	tspush --loops 0 testdata/a.ts udp://239.1.1.1:5000
//	tspush capture.ts "srt://127.0.0.1:9000?streamid=live/a"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stfn345/ats-ebp-validator/internal/ingest"
	"github.com/stfn345/ats-ebp-validator/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts pushOptions
	var logLevel string

	cmd := &cobra.Command{
		Use:           "tspush <file> <url>",
		Short:         "Send a transport stream file to a live endpoint in real time",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(logging.Options{Level: logLevel, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			ep, err := ingest.ParseEndpoint(args[1])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("tspush: read input: %w", err)
			}
			p, err := newPusher(data, opts, log.With("url", args[1]))
			if err != nil {
				return err
			}
			w, err := dial(ep)
			if err != nil {
				return err
			}
			defer w.Close()

			log.Info("pushing", "file", args[0], "url", args[1], "bytes_per_sec", int64(p.rate), "loops", opts.Loops)
			sent, err := p.run(cmd.Context(), w, opts.Loops)
			log.Info("done", "sent", sent)
			return err
		},
	}
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "Send rate in bytes per second (default from the video timeline)")
	cmd.Flags().IntVar(&opts.Loops, "loops", 1, "Passes over the file, 0 to loop until interrupted")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	return cmd
}
