package cli

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"irmemo/internal/progress"
	"irmemo/internal/relay"
	"irmemo/internal/session"
	"irmemo/internal/ui/live"
)

// controllerRef lets presentations built before the controller reach it.
type controllerRef struct {
	ptr atomic.Pointer[session.Controller]
}

func (r *controllerRef) ToggleFindings(id string) progress.Disclosure {
	if c := r.ptr.Load(); c != nil {
		return c.ToggleFindings(id)
	}
	return progress.Disclosure{}
}

func (r *controllerRef) ExpandFindings(id string) progress.Disclosure {
	if c := r.ptr.Load(); c != nil {
		return c.ExpandFindings(id)
	}
	return progress.Disclosure{}
}

func (r *controllerRef) CollapseFindings() progress.Disclosure {
	if c := r.ptr.Load(); c != nil {
		return c.CollapseFindings()
	}
	return progress.Disclosure{}
}

func (r *controllerRef) Snapshot() session.Snapshot {
	if c := r.ptr.Load(); c != nil {
		return c.Snapshot()
	}
	return session.Snapshot{}
}

// presenter owns the live UI or plain printer plus the optional relay.
type presenter struct {
	observers session.Observers
	display   *live.Display
	relay     *relay.Server
	controls  *controllerRef
}

type presentOptions struct {
	uiMode    string
	relayAddr string
	// onQuit runs when the user quits the live UI early.
	onQuit func()
}

// startPresenter resolves the UI mode, starts logging, and launches the
// presentations. The caller must call stop.
func startPresenter(e *env, flags *globalFlags, stdout, stderr io.Writer, opts presentOptions) (*presenter, error) {
	mode := opts.uiMode
	if mode == "" {
		mode = e.cfg.UI.Mode
	}
	decision, err := resolveUIMode(mode, stdout)
	if err != nil {
		return nil, err
	}
	if decision.warning != "" {
		fmt.Fprintln(stderr, decision.warning)
	}
	if err := e.startLogging(flags, stderr, decision.useLive); err != nil {
		return nil, err
	}

	p := &presenter{controls: &controllerRef{}}
	if decision.useLive {
		p.display = live.Start(stdout, live.Options{
			NoColor:  noColorRequested(e.cfg.UI.NoColor),
			Controls: p.controls,
			OnQuit:   opts.onQuit,
		})
		p.observers = append(p.observers, p.display)
	} else {
		p.observers = append(p.observers, live.NewPlain(stdout))
	}

	addr := opts.relayAddr
	if addr == "" {
		addr = e.cfg.Relay.Addr
	}
	if addr != "" {
		hub := relay.NewHub(e.log)
		p.relay = relay.NewServer(hub, p.controls, e.cfg.Relay.MaxMessagesPerSecond, e.log)
		if err := p.relay.Start(addr); err != nil {
			p.stop()
			return nil, err
		}
		fmt.Fprintf(stderr, "Relay listening on ws://%s/events\n", p.relay.Addr())
		p.observers = append(p.observers, hub)
	}
	return p, nil
}

// bind connects the presentations to the controller.
func (p *presenter) bind(ctrl *session.Controller) {
	p.controls.ptr.Store(ctrl)
}

// observer returns the fan-out observer for the controller.
func (p *presenter) observer() session.Observer {
	return p.observers
}

// stop closes the live UI, waits for it to restore the terminal, and stops the relay.
func (p *presenter) stop() {
	if p.display != nil {
		p.display.Close()
		p.display.Wait()
	}
	if p.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.relay.Shutdown(ctx)
	}
}
