package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"irmemo/internal/archive"
	"irmemo/internal/session"
)

// withArchive opens the configured archive for a read-only command.
func withArchive(cmd *cobra.Command, flags *globalFlags, fn func(store *archive.Store) error) error {
	e, err := newEnv(flags)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.startLogging(flags, cmd.ErrOrStderr(), false); err != nil {
		return err
	}
	if !e.cfg.Archive.On() {
		return fmt.Errorf("archive is disabled in config")
	}
	if _, err := os.Stat(e.archivePath()); err != nil {
		return fmt.Errorf("no archive at %s", e.archivePath())
	}
	store, err := e.openArchive(commandContext(cmd), false)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withArchive(cmd, flags, func(store *archive.Store) error {
				runs, err := store.History(commandContext(cmd), limit)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	return cmd
}

func newShowCommand(flags *globalFlags) *cobra.Command {
	var capture string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, flags, func(store *archive.Store) error {
				ctx := commandContext(cmd)
				detail, err := store.Show(ctx, args[0])
				if err != nil {
					return err
				}
				printDetail(cmd.OutOrStdout(), detail)
				if capture == "" {
					return nil
				}
				file, err := os.Create(capture)
				if err != nil {
					return fmt.Errorf("create capture: %w", err)
				}
				defer file.Close()
				if err := store.WriteCapture(ctx, detail.ID, file); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote capture %s\n", capture)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&capture, "capture", "", "Write the run's events to this file for replay")
	return cmd
}

func printHistory(w io.Writer, runs []archive.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs archived.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tSTATUS\tMEMO\tANALYST\tTARGET\tEVENTS\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortRunID(run.ID), run.Kind, run.Status, run.MemoID, run.Analyst,
			runTarget(run), run.EventCount, run.StartedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func printDetail(w io.Writer, detail archive.RunDetail) {
	fmt.Fprintf(w, "Run %s (%s) %s\n", detail.ID, detail.Kind, detail.Status)
	fmt.Fprintf(w, "Analyst: %s  Target: %s\n", detail.Analyst, runTarget(detail.RunSummary))
	fmt.Fprintf(w, "Started: %s", detail.StartedAt.Local().Format(time.DateTime))
	if detail.FinishedAt != nil {
		fmt.Fprintf(w, "  Took: %s", detail.FinishedAt.Sub(detail.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	if detail.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", detail.Error)
	}
	counts := map[string]int{}
	for _, ev := range detail.Events {
		counts[string(ev.Kind)]++
	}
	parts := make([]string, 0, len(counts))
	for _, ev := range detail.Events {
		kind := string(ev.Kind)
		if n, ok := counts[kind]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
			delete(counts, kind)
		}
	}
	fmt.Fprintf(w, "Events: %d (%s)\n", len(detail.Events), strings.Join(parts, " "))
	if detail.Document != nil {
		snap := session.Snapshot{Document: *detail.Document}
		if detail.Progress != nil {
			snap.Progress = *detail.Progress
		}
		printRunSummary(w, snap)
		if detail.Fingerprint != "" {
			fmt.Fprintf(w, "Fingerprint: %s\n", detail.Fingerprint)
		}
	}
}

func runTarget(run archive.RunSummary) string {
	if run.Section != "" {
		return run.Section
	}
	if run.Company != "" && len(run.Sections) > 0 {
		return run.Company + ":" + strings.Join(run.Sections, ",")
	}
	return run.Company
}

func shortRunID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
