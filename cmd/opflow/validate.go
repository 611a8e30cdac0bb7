package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/opflow/errors"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the pipeline it describes",
		Long: `Validate loads the configuration layers, checks every setting and
builds the pipeline without connecting to NATS or starting anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var b bridge
			if cfg.NATS.Enabled {
				if cfg.NATS.InputSubject != "" {
					b.sub = offline{}
				}
				if cfg.NATS.Publisher.Subject != "" {
					b.pub = offline{}
				}
			}
			logger := setupLogger(io.Discard, cfg.Log.Level, cfg.Log.Format)
			d, err := buildDemo(cfg, b, logger, nil)
			if err != nil {
				return err
			}
			if err := d.pipeline.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if show, _ := cmd.Flags().GetBool("show"); show {
				if _, err := fmt.Fprintln(out, cfg.String()); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "configuration valid: %d operations\n", len(d.pipeline.Operations()))
			return err
		},
	}
	cmd.Flags().Bool("show", false, "print the effective configuration, secrets masked")
	return cmd
}

// offline stands in for the NATS ends while validating.
type offline struct{}

func (offline) Next(time.Duration) ([]byte, error) {
	return nil, errors.ErrNoConnection
}

func (offline) Publish(context.Context, string, []byte) error {
	return errors.ErrNoConnection
}

func (offline) Flush(time.Duration) error {
	return errors.ErrNoConnection
}
