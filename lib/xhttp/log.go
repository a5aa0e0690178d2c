package xhttp

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/text/message"

	"oss.terrastruct.com/cmdlog"
)

// statusWriter records the status and size of a response. It keeps http.Hijacker
// reachable so websocket upgrades work behind Log.
type statusWriter struct {
	http.ResponseWriter

	status   int
	length   int
	hijacked bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(p)
	sw.length += n
	return n, err
}

func (sw *statusWriter) Written() bool {
	return sw.status != 0 || sw.hijacked
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not implement http.Hijacker", sw.ResponseWriter)
	}
	c, rw, err := hj.Hijack()
	if err == nil {
		sw.hijacked = true
	}
	return c, rw, err
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Log logs every request handled by next at a level picked from its response status
// and turns panics into a 500.
func Log(clog *cmdlog.Logger, next http.Handler) http.Handler {
	p := message.NewPrinter(message.MatchLanguage("en"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				clog.Error.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL, rec, debug.Stack())
				if !sw.Written() {
					writeJSON(clog, sw, http.StatusInternalServerError, map[string]interface{}{
						"error": http.StatusText(http.StatusInternalServerError),
					})
				}
			}
		}()

		next.ServeHTTP(sw, r)
		dur := time.Since(start)

		switch {
		case sw.hijacked:
			clog.Success.Printf("%s %s %v: upgraded", r.Method, r.URL, dur)
			return
		case sw.status == 0:
			clog.Warn.Printf("%s %s %v: no response written", r.Method, r.URL, dur)
			return
		}

		logger := statusLogger(clog, sw.status)
		if sw.status < 400 && strings.HasPrefix(r.URL.Path, "/static/") {
			logger = clog.Debug
		}
		logger.Printf("%s %s %d %sB %v", r.Method, r.URL, sw.status, p.Sprint(sw.length), dur)
	})
}
