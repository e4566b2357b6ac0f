package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"irmemo/internal/archive"
	"irmemo/internal/memo"
	"irmemo/internal/stream"
)

type regenerateOptions struct {
	memoID      string
	section     string
	analyst     string
	instruction string
	reSearch    bool
	contentFile string
	uiMode      string
	noArchive   bool
}

func newRegenerateCommand(flags *globalFlags) *cobra.Command {
	opts := &regenerateOptions{}
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate one section of an existing memo",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegenerate(cmd, flags, opts)
		},
	}
	cmd.Flags().StringVar(&opts.memoID, "memo-id", "", "Memo id returned by generate")
	cmd.Flags().StringVar(&opts.section, "section", "", "Section to regenerate")
	cmd.Flags().StringVar(&opts.analyst, "analyst", "", "Analyst name (default: archived memo, then run.analyst)")
	cmd.Flags().StringVar(&opts.instruction, "instruction", "", "Editing instruction for the section")
	cmd.Flags().BoolVar(&opts.reSearch, "re-search", false, "Research the section again before rewriting")
	cmd.Flags().StringVar(&opts.contentFile, "content-file", "", "Read the current section content from this file")
	cmd.Flags().StringVar(&opts.uiMode, "ui", "", "UI mode: auto|live|plain (default: ui.mode)")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "Do not archive this run")
	return cmd
}

func runRegenerate(cmd *cobra.Command, flags *globalFlags, opts *regenerateOptions) error {
	memoID := strings.TrimSpace(opts.memoID)
	section := strings.ToLower(strings.TrimSpace(opts.section))
	if memoID == "" || section == "" {
		return usagef("--memo-id and --section are required")
	}
	e, err := newEnv(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	req := stream.RegenerateRequest{
		Section:     section,
		Analyst:     strings.TrimSpace(opts.analyst),
		Instruction: opts.instruction,
		ReSearch:    opts.reSearch,
		MemoID:      memoID,
	}
	if opts.contentFile != "" {
		data, err := os.ReadFile(opts.contentFile)
		if err != nil {
			return fmt.Errorf("read content file: %w", err)
		}
		req.CurrentContent = string(data)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := startPresenter(e, flags, cmd.OutOrStdout(), cmd.ErrOrStderr(), presentOptions{
		uiMode: opts.uiMode,
		onQuit: cancel,
	})
	if err != nil {
		return err
	}
	ctrl, store, err := newController(ctx, e, p, opts.noArchive)
	if err != nil {
		p.stop()
		return err
	}
	if store != nil {
		defer store.Close()
	}

	doc := seedDocument(ctx, e, store, memoID)
	ctrl.Resume(doc, firstNonEmpty(req.Analyst, doc.AnalystName, e.cfg.Run.Analyst))

	conn, err := ctrl.StartRegeneration(ctx, req)
	if err == nil {
		err = ctrl.Wait(conn)
	}
	ctrl.Close()
	p.stop()

	snap := ctrl.Snapshot()
	if sec, ok := snap.Document.Section(section); ok && err == nil {
		printSection(cmd.OutOrStdout(), sec)
	}
	if err != nil {
		return fmt.Errorf("regenerate failed: %w", err)
	}
	return nil
}

// seedDocument loads the newest archived document for memoID, falling back
// to an empty document carrying only the id.
func seedDocument(ctx context.Context, e *env, store *archive.Store, memoID string) memo.Document {
	if store != nil {
		doc, err := store.LatestDocument(ctx, memoID)
		if err == nil {
			e.log.Debug("seeded regeneration from archive", "memo", memoID, "sections", len(doc.Sections))
			return doc
		}
		if !errors.Is(err, archive.ErrNotFound) {
			e.log.Warn("load archived memo failed", "memo", memoID, "err", err)
		}
	}
	return memo.Document{MemoID: memoID}
}
