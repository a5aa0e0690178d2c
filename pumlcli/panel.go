package pumlcli

import (
	"context"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
	"oss.terrastruct.com/xjson"

	"oss.terrastruct.com/pumlview/lib/xbrowser"
	"oss.terrastruct.com/pumlview/pumlpreview"
)

// panelGracePeriod is how long a panel outlives its last websocket. Reloading the
// page reconnects well within it.
const panelGracePeriod = time.Second * 5

// webPanel is a pumlpreview.Panel displayed in a browser tab. At most one websocket
// is attached at a time; a newer connection replaces an older one.
type webPanel struct {
	id string
	w  *watcher

	updateCh chan struct{}

	mu       sync.Mutex
	content  *pumlpreview.Content
	reveals  int
	conn     *connToken
	grace    *time.Timer
	detaches int
	subs     map[int]func(pumlpreview.Message)
	nextSub  int
	disposed bool
}

// connToken identifies one attached connection.
type connToken struct {
	cancel context.CancelFunc
}

func newWebPanel(w *watcher, id string) *webPanel {
	return &webPanel{
		id:       id,
		w:        w,
		updateCh: make(chan struct{}, 1),
		subs:     make(map[int]func(pumlpreview.Message)),
	}
}

func (p *webPanel) ID() string {
	return p.id
}

func (p *webPanel) SetContent(c pumlpreview.Content) {
	p.mu.Lock()
	p.content = &c
	p.mu.Unlock()
	p.notify()
}

func (p *webPanel) getContent() *pumlpreview.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

// Reveal focuses the tab, reopening it when no tab is connected.
func (p *webPanel) Reveal() {
	p.mu.Lock()
	connected := p.conn != nil
	p.reveals++
	p.mu.Unlock()

	if connected {
		p.notify()
		return
	}
	p.w.openBrowser(p.w.panelURL(p.id))
}

func (p *webPanel) Subscribe(fn func(pumlpreview.Message)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Dispose detaches the websocket, if any, without waiting for it to close.
func (p *webPanel) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	if p.grace != nil {
		p.grace.Stop()
	}
	if p.conn != nil {
		p.conn.cancel()
	}
	p.mu.Unlock()

	p.w.removePanel(p)
}

func (p *webPanel) isDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

func (p *webPanel) notify() {
	select {
	case p.updateCh <- struct{}{}:
	default:
	}
}

func (p *webPanel) dispatch(m pumlpreview.Message) {
	p.mu.Lock()
	fns := make([]func(pumlpreview.Message), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}

// attach makes tok the panel's connection, cancelling the one it replaces.
// It returns false if the panel was disposed.
func (p *webPanel) attach(tok *connToken) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return false
	}
	if p.conn != nil {
		p.conn.cancel()
	}
	if p.grace != nil {
		p.grace.Stop()
		p.grace = nil
	}
	p.conn = tok
	return true
}

func (p *webPanel) attached(tok *connToken) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn == tok
}

// detach starts the grace period after tok went away. The panel is disposed if
// nothing reconnects in time.
func (p *webPanel) detach(tok *connToken, gracePeriod time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || p.conn != tok {
		return
	}
	p.conn = nil
	p.detaches++
	gen := p.detaches
	p.grace = time.AfterFunc(gracePeriod, func() {
		p.graceExpired(gen)
	})
}

// graceExpired disposes the panel unless a connection attached, or detached again,
// after the grace period numbered gen started. Stopping the timer does not stop a
// callback that already fired.
func (p *webPanel) graceExpired(gen int) {
	p.mu.Lock()
	expired := !p.disposed && p.conn == nil && p.detaches == gen
	p.mu.Unlock()
	if !expired {
		return
	}
	p.w.ms.Log.Info.Printf("preview tab closed: disposing panel %s", p.id)
	p.dispatch(pumlpreview.DisposeMessage{})
}

type wsMessage struct {
	Type    string               `json:"type"`
	Content *pumlpreview.Content `json:"content,omitempty"`
}

// serve drives one websocket connection until ctx is done or the connection fails.
func (p *webPanel) serve(ctx context.Context, c *websocket.Conn, tok *connToken) error {
	go p.readLoop(ctx, c, tok)
	go wsHeartbeat(ctx, c)
	return p.writeLoop(ctx, c)
}

func (p *webPanel) readLoop(ctx context.Context, c *websocket.Conn, tok *connToken) {
	defer tok.cancel()
	for {
		typ, b, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		m, err := pumlpreview.DecodeMessage(b)
		if err != nil {
			p.w.ms.Log.Warn.Printf("panel %s: %v", p.id, err)
			continue
		}
		p.w.ms.Log.Debug.Printf("panel %s sent %T%s", p.id, m, xjson.MarshalIndent(m))
		p.dispatch(m)
	}
}

func (p *webPanel) writeLoop(ctx context.Context, c *websocket.Conn) error {
	var sent int64 = -1
	reveals := 0
	p.mu.Lock()
	reveals = p.reveals
	p.mu.Unlock()

	for {
		content := p.getContent()
		if content != nil && content.Revision > sent {
			err := p.write(ctx, c, wsMessage{Type: "content", Content: content})
			if err != nil {
				return err
			}
			sent = content.Revision
		}

		p.mu.Lock()
		reveal := p.reveals != reveals
		reveals = p.reveals
		p.mu.Unlock()
		if reveal {
			err := p.write(ctx, c, wsMessage{Type: "reveal"})
			if err != nil {
				return err
			}
		}

		select {
		case <-p.updateCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *webPanel) write(ctx context.Context, c *websocket.Conn, m wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	return wsjson.Write(ctx, c, m)
}

// wsHeartbeat pings c every 30s and closes it once a ping fails. Closing on ctx
// is left to the caller so that it can pick the close status.
func wsHeartbeat(ctx context.Context, c *websocket.Conn) {
	t := time.NewTimer(0)
	<-t.C
	for {
		err := c.Ping(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.Close(websocket.StatusInternalError, "the sky is falling")
			}
			return
		}

		t.Reset(time.Second * 30)
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *webPanel) closeStatus(tok *connToken) (websocket.StatusCode, string) {
	switch {
	case p.isDisposed():
		return websocket.StatusNormalClosure, "panel closed"
	case p.w.ctx.Err() != nil:
		return websocket.StatusGoingAway, "server shutting down..."
	case !p.attached(tok):
		return websocket.StatusNormalClosure, "panel opened in another tab"
	default:
		return websocket.StatusInternalError, "the sky is falling"
	}
}

func (w *watcher) openBrowser(url string) {
	err := xbrowser.OpenURL(w.ctx, w.ms.Env, url)
	if errors.Is(err, xbrowser.ErrDisabled) {
		w.ms.Log.Info.Printf("preview at %s", url)
		return
	}
	if err != nil {
		w.ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
	}
}
