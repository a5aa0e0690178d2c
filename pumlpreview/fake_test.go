package pumlpreview_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"cdr.dev/slog/sloggers/slogtest"

	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

type fakePanel struct {
	id string

	mu       sync.Mutex
	contents []pumlpreview.Content
	reveals  int
	disposed int
	subs     map[int]func(pumlpreview.Message)
	nextSub  int
}

func newFakePanel(id string) *fakePanel {
	return &fakePanel{
		id:   id,
		subs: make(map[int]func(pumlpreview.Message)),
	}
}

func (p *fakePanel) ID() string { return p.id }

func (p *fakePanel) SetContent(c pumlpreview.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contents = append(p.contents, c)
}

func (p *fakePanel) Reveal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reveals++
}

func (p *fakePanel) Subscribe(fn func(pumlpreview.Message)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *fakePanel) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed++
}

// send delivers m to every subscriber as a surface would.
func (p *fakePanel) send(m pumlpreview.Message) {
	p.mu.Lock()
	var fns []func(pumlpreview.Message)
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (p *fakePanel) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePanel) last() pumlpreview.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.contents) == 0 {
		return pumlpreview.Content{}
	}
	return p.contents[len(p.contents)-1]
}

func (p *fakePanel) renders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contents)
}

type fakeProgress struct {
	h     *fakeHost
	title string
}

func (p fakeProgress) Report(msg string) {
	p.h.mu.Lock()
	defer p.h.mu.Unlock()
	p.h.progress = append(p.h.progress, p.title+": "+msg)
}

func (p fakeProgress) Done() {
	p.h.mu.Lock()
	defer p.h.mu.Unlock()
	p.h.progress = append(p.h.progress, p.title+": done")
}

type fakeHost struct {
	mu sync.Mutex

	doc    pumlpreview.Document
	hasDoc bool

	panels []*fakePanel

	savePath     string
	saveCancel   bool
	saveErr      error
	saveDialogs  []pumlpreview.SaveOptions
	writeErr     error
	written      map[string][]byte
	notes        []pumlpreview.Notification
	notifyAction string
	opened       []string
	revealed     []string
	progress     []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		written: make(map[string][]byte),
	}
}

func (h *fakeHost) setDoc(path, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.doc = pumlpreview.Document{
		Path:       path,
		LanguageID: pumlpreview.LanguageForPath(path),
		Text:       text,
	}
	h.hasDoc = true
}

func (h *fakeHost) ActiveDocument() (pumlpreview.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc, h.hasDoc
}

func (h *fakeHost) CreatePanel(ctx context.Context) (pumlpreview.Panel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := newFakePanel(fmt.Sprintf("panel-%d", len(h.panels)))
	h.panels = append(h.panels, p)
	return p, nil
}

func (h *fakeHost) SaveDialog(ctx context.Context, opts pumlpreview.SaveOptions) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveDialogs = append(h.saveDialogs, opts)
	if h.saveErr != nil {
		return "", false, h.saveErr
	}
	if h.saveCancel {
		return "", false, nil
	}
	if h.savePath == "" {
		return opts.DefaultPath, true, nil
	}
	return h.savePath, true, nil
}

func (h *fakeHost) Progress(ctx context.Context, title string) pumlpreview.Progress {
	return fakeProgress{h: h, title: title}
}

func (h *fakeHost) WriteFile(ctx context.Context, path string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.written[path] = data
	return nil
}

func (h *fakeHost) Notify(ctx context.Context, n pumlpreview.Notification) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, n)
	if len(n.Actions) == 0 {
		return "", nil
	}
	return h.notifyAction, nil
}

func (h *fakeHost) OpenFile(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, path)
	return nil
}

func (h *fakeHost) RevealFile(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revealed = append(h.revealed, path)
	return nil
}

// plantumlServer serves svg and png renders and counts requests.
type plantumlServer struct {
	*httptest.Server
	requests int64
	fail     atomic.Bool
}

func newPlantumlServer(t *testing.T) *plantumlServer {
	s := &plantumlServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requests, 1)
		if s.fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/plantuml/svg/"):
			_, _ = w.Write([]byte("<svg></svg>"))
		case strings.HasPrefix(r.URL.Path, "/plantuml/png/"):
			_, _ = w.Write([]byte("\x89PNG"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *plantumlServer) count() int64 {
	return atomic.LoadInt64(&s.requests)
}

func (s *plantumlServer) service() *pumlsvc.Service {
	return pumlsvc.New(pumlsvc.Config{
		Server:     s.URL + "/plantuml",
		HTTPClient: s.Client(),
	})
}

func runController(t *testing.T, h pumlpreview.Host, svc *pumlsvc.Service) (context.Context, *pumlpreview.Controller) {
	t.Helper()

	ctx := log.WithTB(context.Background(), t, &slogtest.Options{IgnoreErrors: true})
	ctx, cancel := context.WithCancel(ctx)

	c := pumlpreview.New(h, svc)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		err := <-done
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected Run error: %v", err)
		}
	})
	return ctx, c
}
