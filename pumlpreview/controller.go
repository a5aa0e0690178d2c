// Package pumlpreview implements the preview panel controller: it owns at most one
// panel, renders the active PlantUML document into it and exports diagrams on request.
package pumlpreview

import (
	"context"
	"errors"
	"fmt"

	"cdr.dev/slog"

	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

type State int

const (
	Absent State = iota
	Visible
	Hidden
	Disposed
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	case Disposed:
		return "disposed"
	default:
		return "absent"
	}
}

// ErrStopped is returned by Controller methods once Run has returned.
var ErrStopped = errors.New("preview controller stopped")

// Controller manages the lifecycle of a single preview panel.
//
// Every field below events is owned by the goroutine executing Run. Exported methods
// hand work to that goroutine and wait for it, so they may be called from anywhere.
type Controller struct {
	host Host
	svc  *pumlsvc.Service

	events  chan event
	stopped chan struct{}

	state       State
	panel       Panel
	disposables []func()
	revision    int64
}

type event struct {
	fn   func(ctx context.Context) error
	done chan error
}

func New(host Host, svc *pumlsvc.Service) *Controller {
	return &Controller{
		host:    host,
		svc:     svc,
		events:  make(chan event),
		stopped: make(chan struct{}),
	}
}

// Run processes events until ctx is done. The panel, if any, is disposed on return.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.teardown(ctx)

	for {
		select {
		case ev := <-c.events:
			err := ev.fn(ctx)
			if ev.done != nil {
				ev.done <- err
			} else if err != nil {
				log.Error(ctx, "failed to handle panel message", slog.Error(err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// do runs fn on the Run goroutine and waits for its result.
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	ev := event{
		fn:   fn,
		done: make(chan error, 1),
	}
	select {
	case c.events <- ev:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.done:
		return err
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used for messages from panel surfaces.
func (c *Controller) post(fn func(ctx context.Context) error) {
	select {
	case c.events <- event{fn: fn}:
	case <-c.stopped:
	}
}

// OpenPreview reveals and refreshes the panel, creating it first when there is none.
func (c *Controller) OpenPreview(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		if c.panel != nil {
			c.panel.Reveal()
			c.state = Visible
			return c.render(ctx)
		}

		p, err := c.host.CreatePanel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open PlantUML preview: %w", err)
		}
		c.attach(ctx, p)
		return c.render(ctx)
	})
}

// Revive adopts a panel the host restored from a previous session.
// A live panel is disposed first so that there is never more than one.
func (c *Controller) Revive(ctx context.Context, p Panel) error {
	return c.do(ctx, func(ctx context.Context) error {
		if c.panel == p {
			return c.render(ctx)
		}
		if c.panel != nil {
			log.Warn(ctx, "replacing live panel with restored panel", slog.F("old", c.panel.ID()), slog.F("new", p.ID()))
			c.teardown(ctx)
		}
		c.attach(ctx, p)
		return c.render(ctx)
	})
}

// DocumentChanged refreshes the panel when doc is a PlantUML document.
func (c *Controller) DocumentChanged(ctx context.Context, doc Document) error {
	return c.refreshFor(ctx, doc)
}

// ActiveEditorChanged refreshes the panel when the newly active doc is a PlantUML
// document.
func (c *Controller) ActiveEditorChanged(ctx context.Context, doc Document) error {
	return c.refreshFor(ctx, doc)
}

func (c *Controller) refreshFor(ctx context.Context, doc Document) error {
	if !doc.Recognized() {
		return nil
	}
	return c.do(ctx, func(ctx context.Context) error {
		if c.panel == nil {
			return nil
		}
		return c.render(ctx)
	})
}

// ClosePanel disposes the panel. It is a no-op without one.
func (c *Controller) ClosePanel(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.teardown(ctx)
		return nil
	})
}

// Export exports the active document as target. Validation problems and a cancelled
// save dialog are reported to the user and return nil.
func (c *Controller) Export(ctx context.Context, target pumlsvc.RenderTarget) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.export(ctx, target)
	})
}

// State returns the lifecycle state and the id of the live panel, if any.
func (c *Controller) State(ctx context.Context) (s State, panelID string, err error) {
	err = c.do(ctx, func(ctx context.Context) error {
		s = c.state
		if c.panel != nil {
			panelID = c.panel.ID()
		}
		return nil
	})
	return s, panelID, err
}

func (c *Controller) attach(ctx context.Context, p Panel) {
	c.panel = p
	c.state = Visible
	c.disposables = append(c.disposables, p.Subscribe(func(m Message) {
		c.post(func(ctx context.Context) error {
			if c.panel != p {
				// Sent by a panel that has since been replaced.
				return nil
			}
			return c.handleMessage(ctx, m)
		})
	}))
	log.Debug(ctx, "attached panel", slog.F("panel", p.ID()))
}

func (c *Controller) handleMessage(ctx context.Context, m Message) error {
	log.Debug(ctx, "received panel message", slog.F("panel", c.panel.ID()), slog.F("message", fmt.Sprintf("%T%+v", m, m)))

	switch m := m.(type) {
	case ExportMessage:
		return c.export(ctx, m.Target)
	case VisibilityMessage:
		if !m.Visible {
			c.state = Hidden
			return nil
		}
		wasHidden := c.state == Hidden
		c.state = Visible
		if wasHidden {
			// Edits made while hidden are picked up here.
			return c.render(ctx)
		}
		return nil
	case DisposeMessage:
		c.teardown(ctx)
		return nil
	}
	return fmt.Errorf("unhandled panel message %T", m)
}

// teardown releases the panel and its subscriptions. Calling it again is a no-op.
func (c *Controller) teardown(ctx context.Context) {
	if c.panel == nil {
		return
	}
	p := c.panel
	c.panel = nil
	c.state = Disposed

	for len(c.disposables) > 0 {
		d := c.disposables[len(c.disposables)-1]
		c.disposables = c.disposables[:len(c.disposables)-1]
		d()
	}
	p.Dispose()
	log.Debug(ctx, "disposed panel", slog.F("panel", p.ID()))
}

// render always reads the active document at the time it runs.
func (c *Controller) render(ctx context.Context) error {
	doc, ok := c.host.ActiveDocument()
	content := NewContent(c.svc, doc, ok)

	c.revision++
	content.Revision = c.revision

	content, err := content.WithBody()
	if err != nil {
		return fmt.Errorf("failed to render preview: %w", err)
	}
	log.Debug(ctx, "rendering preview", slog.F("revision", content.Revision), slog.F("kind", content.Kind))
	c.panel.SetContent(content)
	return nil
}
