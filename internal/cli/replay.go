package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"irmemo/internal/session"
	"irmemo/internal/stream"
	"irmemo/internal/ui/live"
)

// replayOpener serves a recorded capture in place of the backend.
type replayOpener struct {
	r         io.Reader
	chunkSize int
	log       *log.Logger
}

func (o *replayOpener) Generate(ctx context.Context, _ stream.GenerateRequest) (*stream.Connection, error) {
	return stream.Replay(ctx, o.r, stream.ReplayOptions{ChunkSize: o.chunkSize, Logger: o.log}), nil
}

func (o *replayOpener) Regenerate(context.Context, stream.RegenerateRequest) (*stream.Connection, error) {
	return nil, fmt.Errorf("replay does not support regeneration")
}

func newReplayCommand(flags *globalFlags) *cobra.Command {
	var chunkSize int
	var analyst string
	cmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: "Replay a recorded event stream through the progress pipeline",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open capture: %w", err)
			}
			defer file.Close()

			e, err := newEnv(flags)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.startLogging(flags, cmd.ErrOrStderr(), false); err != nil {
				return err
			}

			opener := &replayOpener{r: file, chunkSize: chunkSize, log: e.log}
			ctrl := session.New(opener,
				session.WithLogger(e.log),
				session.WithObserver(live.NewPlain(cmd.OutOrStdout())),
			)
			conn, err := ctrl.StartRun(commandContext(cmd), stream.GenerateRequest{Analyst: analyst})
			if err == nil {
				err = ctrl.Wait(conn)
			}
			printRunSummary(cmd.OutOrStdout(), ctrl.Snapshot())
			if err != nil {
				return fmt.Errorf("replay ended with error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk", 0, "Read the capture in chunks of this many bytes")
	cmd.Flags().StringVar(&analyst, "analyst", "", "Analyst name used when the capture carries none")
	return cmd
}
