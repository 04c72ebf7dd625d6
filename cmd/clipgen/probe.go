package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipgen/internal/config"
	"github.com/clipforge/clipgen/internal/logging"
	"github.com/clipforge/clipgen/internal/transcode"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the transcoder is runnable and show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			sc := cfg.Storage()
			fmt.Fprintf(out, "ffmpeg:   %s\n", cfg.FFmpegPath())
			fmt.Fprintf(out, "work dir: %s\n", cfg.WorkRoot())
			secret := sc.ServiceKey
			if sc.Backend == config.BackendS3 {
				secret = sc.SecretAccessKey
			}
			fmt.Fprintf(out, "storage:  %s bucket=%s key=%s\n", sc.Backend, sc.Bucket, logging.SanitizeToken(secret))
			if cfg.HistoryEnabled() {
				fmt.Fprintf(out, "history:  %s\n", cfg.DBPath())
			} else {
				fmt.Fprintln(out, "history:  disabled")
			}

			runner := transcode.NewExecRunner(nil)
			version, err := transcode.Version(cmd.Context(), runner, cfg.FFmpegPath(), cfg.ProbeTimeout())
			if err != nil {
				fmt.Fprintln(out, "status:   ffmpeg unavailable")
				return fmt.Errorf("ffmpeg probe failed: %w", err)
			}
			fmt.Fprintf(out, "status:   %s\n", version)
			return nil
		},
	}
}
