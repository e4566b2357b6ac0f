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
	"irmemo/internal/session"
	"irmemo/internal/stream"
)

type generateOptions struct {
	analyst   string
	company   string
	sections  string
	uiMode    string
	relayAddr string
	noArchive bool
}

func newGenerateCommand(flags *globalFlags) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a memo and stream its progress",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, flags, opts)
		},
	}
	cmd.Flags().StringVar(&opts.analyst, "analyst", "", "Analyst name (default: run.analyst)")
	cmd.Flags().StringVar(&opts.company, "company", "", "Company ticker (default: run.company)")
	cmd.Flags().StringVar(&opts.sections, "sections", "", "Comma-separated sections or \"all\" (default: run.sections)")
	cmd.Flags().StringVar(&opts.uiMode, "ui", "", "UI mode: auto|live|plain (default: ui.mode)")
	cmd.Flags().StringVar(&opts.relayAddr, "relay", "", "Serve a websocket relay on this address")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "Do not archive this run")
	return cmd
}

func runGenerate(cmd *cobra.Command, flags *globalFlags, opts *generateOptions) error {
	e, err := newEnv(flags)
	if err != nil {
		return err
	}
	defer e.Close()

	req := stream.GenerateRequest{
		Analyst:  firstNonEmpty(strings.TrimSpace(opts.analyst), e.cfg.Run.Analyst),
		Company:  firstNonEmpty(strings.TrimSpace(opts.company), e.cfg.Run.Company),
		Sections: e.cfg.Run.Sections,
	}
	if req.Analyst == "" {
		return usagef("--analyst is required (or set run.analyst)")
	}
	if opts.sections != "" {
		req.Sections = splitSections(opts.sections)
	}
	if len(req.Sections) == 1 && req.Sections[0] == "all" {
		req.Sections = nil
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := startPresenter(e, flags, cmd.OutOrStdout(), cmd.ErrOrStderr(), presentOptions{
		uiMode:    opts.uiMode,
		relayAddr: opts.relayAddr,
		onQuit:    cancel,
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

	conn, err := ctrl.StartRun(ctx, req)
	if err == nil {
		err = ctrl.Wait(conn)
	}
	ctrl.Close()
	p.stop()

	snap := ctrl.Snapshot()
	printRunSummary(cmd.OutOrStdout(), snap)
	if errors.Is(err, session.ErrClosed) && ctx.Err() != nil {
		return fmt.Errorf("run cancelled")
	}
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// newController builds the session controller with the archive recorder
// when enabled. The caller closes the returned store when it is not nil.
func newController(ctx context.Context, e *env, p *presenter, noArchive bool) (*session.Controller, *archive.Store, error) {
	client, err := e.client()
	if err != nil {
		return nil, nil, err
	}
	options := []session.Option{session.WithLogger(e.log), session.WithObserver(p.observer())}
	store, err := e.openArchive(ctx, noArchive)
	if err != nil {
		e.log.Warn("archive unavailable, continuing without it", "err", err)
		store = nil
	}
	if store != nil {
		options = append(options, session.WithRecorder(store))
	}
	ctrl := session.New(client, options...)
	p.bind(ctrl)
	return ctrl, store, nil
}

// commandContext returns the cobra context or a background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func splitSections(value string) []string {
	var sections []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			sections = append(sections, trimmed)
		}
	}
	return sections
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
