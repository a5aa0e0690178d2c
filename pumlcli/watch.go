package pumlcli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"oss.terrastruct.com/pumlview/lib/xhttp"
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

// Enabled with the build tag "dev".
// See watch_dev.go
// Controls whether the embedded staticFS is used or if files are served directly from the
// file system. Useful for quick iteration in development.
var devMode = false

//go:embed static
var staticFS embed.FS

type watcherOpts struct {
	host        string
	port        string
	inputPaths  []string
	panzoomURL  string
	gracePeriod time.Duration
}

// watcher is the live preview host. It serves preview panels to the browser,
// answers dialogs in the terminal and feeds file changes to the controller.
type watcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	devMode bool

	ms *xmain.State
	watcherOpts
	*terminal

	svc  *pumlsvc.Service
	ctrl *pumlpreview.Controller

	fw               *fsnotify.Watcher
	l                net.Listener
	staticFileServer http.Handler

	docsMu sync.Mutex
	docs   map[string]pumlpreview.Document
	active string

	panelsMu sync.Mutex
	closing  bool
	panelsWG sync.WaitGroup
	panels   map[string]*webPanel

	errMu sync.Mutex
	err   error
}

var _ pumlpreview.Host = &watcher{}

func newWatcher(ctx context.Context, ms *xmain.State, svc *pumlsvc.Service, opts watcherOpts) (*watcher, error) {
	ctx, cancel := context.WithCancel(ctx)

	if opts.gracePeriod == 0 {
		opts.gracePeriod = panelGracePeriod
	}

	w := &watcher{
		ctx:     ctx,
		cancel:  cancel,
		devMode: devMode,

		ms:          ms,
		watcherOpts: opts,
		terminal:    newTerminal(ms),

		svc: svc,

		docs:   make(map[string]pumlpreview.Document),
		panels: make(map[string]*webPanel),
	}
	w.ctrl = pumlpreview.New(w, svc)
	err := w.init()
	if err != nil {
		cancel()
		return nil, err
	}
	return w, nil
}

func (w *watcher) init() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw
	err = w.initStaticFileServer()
	if err != nil {
		return err
	}
	return w.listen()
}

func (w *watcher) initStaticFileServer() error {
	// Serve files directly in dev mode for fast iteration.
	if w.devMode {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			return errors.New("pumlview: runtime failed to provide path of watch.go")
		}

		staticFilesDir := filepath.Join(filepath.Dir(file), "./static")
		w.staticFileServer = http.FileServer(http.Dir(staticFilesDir))
		return nil
	}

	sfs, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	w.staticFileServer = http.FileServer(http.FS(sfs))
	return nil
}

func (w *watcher) run() error {
	defer w.close()

	w.goFunc(w.ctrl.Run)

	err := w.goServe()
	if err != nil {
		return err
	}

	w.goFunc(w.watchLoop)

	w.wg.Wait()
	w.close()
	return w.err
}

func (w *watcher) close() {
	w.panelsMu.Lock()
	if w.closing {
		w.panelsMu.Unlock()
		return
	}
	w.closing = true
	w.panelsMu.Unlock()

	w.cancel()
	if w.fw != nil {
		err := w.fw.Close()
		w.setErr(err)
	}
	if w.l != nil {
		err := w.l.Close()
		if !errors.Is(err, net.ErrClosed) {
			w.setErr(err)
		}
	}

	w.panelsWG.Wait()
}

func (w *watcher) setErr(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *watcher) goFunc(fn func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.cancel()

		err := fn(w.ctx)
		w.setErr(err)
	}()
}

// ActiveDocument is the most recently changed input file.
func (w *watcher) ActiveDocument() (pumlpreview.Document, bool) {
	w.docsMu.Lock()
	defer w.docsMu.Unlock()
	doc, ok := w.docs[w.active]
	return doc, ok
}

func (w *watcher) CreatePanel(ctx context.Context) (pumlpreview.Panel, error) {
	p, err := w.addPanel(uuid.NewString())
	if err != nil {
		return nil, err
	}
	w.openBrowser(w.panelURL(p.id))
	return p, nil
}

func (w *watcher) addPanel(id string) (*webPanel, error) {
	w.panelsMu.Lock()
	defer w.panelsMu.Unlock()
	if w.closing {
		return nil, errors.New("server shutting down")
	}
	p := newWebPanel(w, id)
	w.panels[id] = p
	return p, nil
}

func (w *watcher) removePanel(p *webPanel) {
	w.panelsMu.Lock()
	defer w.panelsMu.Unlock()
	if w.panels[p.id] == p {
		delete(w.panels, p.id)
	}
}

func (w *watcher) panel(id string) *webPanel {
	w.panelsMu.Lock()
	defer w.panelsMu.Unlock()
	return w.panels[id]
}

func (w *watcher) panelURL(id string) string {
	return fmt.Sprintf("http://%s/panel/%s", w.l.Addr(), id)
}

// load reads fp into the document set. It returns false if fp could not be read.
func (w *watcher) load(fp string) bool {
	b, err := os.ReadFile(fp)
	if err != nil {
		w.ms.Log.Error.Printf("failed to read %s: %v", w.ms.HumanPath(fp), err)
		return false
	}
	w.docsMu.Lock()
	w.docs[fp] = pumlpreview.Document{
		Path:       fp,
		LanguageID: pumlpreview.LanguageForPath(fp),
		Text:       string(b),
	}
	w.docsMu.Unlock()
	return true
}

// activate makes fp the active document and reports whether it was already.
func (w *watcher) activate(fp string) (pumlpreview.Document, bool) {
	w.docsMu.Lock()
	defer w.docsMu.Unlock()
	was := w.active == fp
	w.active = fp
	return w.docs[fp], was
}

// refresh reloads changed and tells the controller. latest becomes the active document.
func (w *watcher) refresh(ctx context.Context, changed []string, latest string) error {
	for _, fp := range changed {
		w.load(fp)
	}
	doc, was := w.activate(latest)
	var err error
	if was {
		err = w.ctrl.DocumentChanged(ctx, doc)
	} else {
		w.ms.Log.Info.Printf("previewing %s", w.ms.HumanPath(latest))
		err = w.ctrl.ActiveEditorChanged(ctx, doc)
	}
	if errors.Is(err, pumlpreview.ErrStopped) || errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		w.ms.Log.Error.Printf("failed to refresh preview: %v", err)
	}
	return nil
}

/*
 * IMPORTANT
 *
 * fsnotify and file system watching APIs in general are notoriously hard
 * to use correctly.
 *
 * This issue is a good summary though it too contains confusion and misunderstandings:
 *   https://github.com/fsnotify/fsnotify/issues/372
 */
func (w *watcher) watchLoop(ctx context.Context) error {
	lastModified := make(map[string]time.Time)

	for _, fp := range w.inputPaths {
		mt, err := w.ensureAddWatch(ctx, fp)
		if err != nil {
			return err
		}
		lastModified[fp] = mt
		w.load(fp)
	}
	w.activate(w.inputPaths[0])
	w.ms.Log.Info.Printf("previewing %v...", w.ms.HumanPath(w.inputPaths[0]))
	err := w.ctrl.OpenPreview(ctx)
	if err != nil {
		return err
	}

	eatBurstTimer := time.NewTimer(0)
	<-eatBurstTimer.C
	pollTicker := time.NewTicker(time.Second * 10)
	defer pollTicker.Stop()

	changed := make(map[string]struct{})
	latest := ""

	for {
		select {
		case <-pollTicker.C:
			// In case we missed an event indicating the path is unwatchable and we won't be
			// getting any more events.
			var missed []string
			for _, watched := range w.inputPaths {
				mt, err := w.ensureAddWatch(ctx, watched)
				if err != nil {
					return err
				}
				if mt2, ok := lastModified[watched]; !ok || !mt.Equal(mt2) {
					missed = append(missed, watched)
					lastModified[watched] = mt
				}
			}
			if len(missed) > 0 {
				err = w.refresh(ctx, missed, missed[len(missed)-1])
				if err != nil {
					return err
				}
			}
		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Debug.Printf("received file system event %v", ev)
			mt, err := w.ensureAddWatch(ctx, ev.Name)
			if err != nil {
				return err
			}
			if ev.Op == fsnotify.Chmod {
				if mt.Equal(lastModified[ev.Name]) {
					// Benign Chmod.
					// See https://github.com/fsnotify/fsnotify/issues/15
					continue
				}
				// We missed changes.
			}
			lastModified[ev.Name] = mt
			changed[ev.Name] = struct{}{}
			latest = ev.Name
			// Wait at least 16 milliseconds after a sequence of events so that one logical
			// save (often chmod, write, chmod) becomes a single refresh.
			eatBurstTimer.Reset(time.Millisecond * 16)
		case <-eatBurstTimer.C:
			var changedList []string
			for k := range changed {
				changedList = append(changedList, k)
				delete(changed, k)
			}
			sort.Strings(changedList)
			changedStr := w.ms.HumanPath(changedList[0])
			for i := 1; i < len(changedList); i++ {
				changedStr += fmt.Sprintf(", %s", w.ms.HumanPath(changedList[i]))
			}
			w.ms.Log.Info.Printf("detected change in %s: refreshing...", changedStr)
			err = w.refresh(ctx, changedList, latest)
			if err != nil {
				return err
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Error.Printf("fsnotify error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *watcher) ensureAddWatch(ctx context.Context, path string) (time.Time, error) {
	interval := time.Millisecond * 16
	tc := time.NewTimer(0)
	<-tc.C
	for {
		mt, err := w.addWatch(path)
		if err == nil {
			return mt, nil
		}
		if interval >= time.Second {
			w.ms.Log.Error.Printf("failed to watch %q: %v (retrying in %v)", w.ms.HumanPath(path), err, interval)
		}

		tc.Reset(interval)
		select {
		case <-tc.C:
			if interval < time.Second {
				interval = time.Second
			}
			if interval < time.Second*16 {
				interval *= 2
			}
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
}

func (w *watcher) addWatch(path string) (time.Time, error) {
	err := w.fw.Add(path)
	if err != nil {
		return time.Time{}, err
	}
	var d os.FileInfo
	d, err = os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return d.ModTime(), nil
}

func (w *watcher) listen() error {
	l, err := xhttp.Listen(w.host, w.port)
	if err != nil {
		return err
	}
	w.l = l
	w.ms.Log.Success.Printf("listening on http://%v", w.l.Addr())
	return nil
}

func (w *watcher) routes() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/", xhttp.HandlerFuncAdapter{Log: w.ms.Log, Func: w.handleRoot})
	r.Method(http.MethodGet, "/panel/{id}", xhttp.HandlerFuncAdapter{Log: w.ms.Log, Func: w.handlePanel})
	r.Method(http.MethodGet, "/panel/{id}/ws", xhttp.HandlerFuncAdapter{Log: w.ms.Log, Func: w.handlePanelWS})
	r.Handle("/static/*", http.StripPrefix("/static", w.staticFileServer))
	return xhttp.Log(w.ms.Log, r)
}

func (w *watcher) goServe() error {
	s := xhttp.NewServer(w.ms.Log.Warn, w.routes())
	w.goFunc(func(ctx context.Context) error {
		return xhttp.Serve(ctx, time.Second*30, s, w.l)
	})
	return nil
}

// handleRoot sends the browser to the live panel, or to a new one that is created
// when its websocket connects.
func (w *watcher) handleRoot(hw http.ResponseWriter, r *http.Request) error {
	_, id, err := w.ctrl.State(r.Context())
	if err != nil {
		return xhttp.ErrorWrap(http.StatusServiceUnavailable, "server shutting down...", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	http.Redirect(hw, r, "/panel/"+id, http.StatusFound)
	return nil
}

func panelID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	_, err := uuid.Parse(id)
	if err != nil {
		return "", xhttp.Errorf(http.StatusNotFound, nil, "invalid panel id %q: %v", id, err)
	}
	return id, nil
}

func (w *watcher) handlePanel(hw http.ResponseWriter, r *http.Request) error {
	id, err := panelID(r)
	if err != nil {
		return err
	}

	var c pumlpreview.Content
	if p := w.panel(id); p != nil && p.getContent() != nil {
		c = *p.getContent()
	} else {
		doc, ok := w.ActiveDocument()
		c, err = pumlpreview.NewContent(w.svc, doc, ok).WithBody()
		if err != nil {
			return err
		}
	}

	page, err := pumlpreview.RenderPage(c, pumlpreview.PageOptions{
		PanelID:      id,
		SocketPath:   "/panel/" + id + "/ws",
		StaticPrefix: "/static",
		PanzoomURL:   w.panzoomURL,
		DevMode:      w.devMode,
	})
	if err != nil {
		return err
	}
	hw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = hw.Write(page)
	return err
}

// handlePanelWS attaches a websocket to a panel. An id the host does not know is a
// tab left over from an earlier session or a disposed panel, and is revived.
func (w *watcher) handlePanelWS(hw http.ResponseWriter, r *http.Request) error {
	id, err := panelID(r)
	if err != nil {
		return err
	}

	w.panelsMu.Lock()
	if w.closing {
		w.panelsMu.Unlock()
		return xhttp.Errorf(http.StatusServiceUnavailable, "server shutting down...", "server shutting down...")
	}
	// Register before upgrading so that w.close() waits for us.
	w.panelsWG.Add(1)
	p, known := w.panels[id]
	if !known {
		p = newWebPanel(w, id)
		w.panels[id] = p
	}
	w.panelsMu.Unlock()

	c, err := websocket.Accept(hw, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		w.panelsWG.Done()
		if !known {
			w.removePanel(p)
		}
		return err
	}

	go func() {
		defer w.panelsWG.Done()

		ctx, cancel := context.WithCancel(w.ctx)
		defer cancel()

		tok := &connToken{cancel: cancel}
		if !p.attach(tok) {
			c.Close(websocket.StatusNormalClosure, "panel closed")
			return
		}
		if !known {
			w.ms.Log.Info.Printf("restoring preview panel %s", id)
			err := w.ctrl.Revive(ctx, p)
			if err != nil {
				w.ms.Log.Error.Printf("failed to restore preview panel %s: %v", id, err)
				p.Dispose()
				c.Close(websocket.StatusInternalError, "failed to restore panel")
				return
			}
		}

		_ = p.serve(ctx, c, tok)
		code, reason := p.closeStatus(tok)
		c.Close(code, reason)
		p.detach(tok, w.gracePeriod)
	}()
	return nil
}
