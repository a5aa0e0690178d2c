package xhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"oss.terrastruct.com/cmdlog"
)

// Error is returned from a HandlerFunc to pick the status code and response body
// written for err.
type Error struct {
	Code int
	// Resp is written as the "error" field of the JSON body.
	// nil means http.StatusText(Code).
	Resp interface{}
	Err  error
}

// Errorf returns an Error with code and resp wrapping fmt.Errorf(msg, v...).
func Errorf(code int, resp interface{}, msg string, v ...interface{}) error {
	return ErrorWrap(code, resp, fmt.Errorf(msg, v...))
}

// ErrorWrap returns an Error with code and resp wrapping err.
func ErrorWrap(code int, resp interface{}, err error) error {
	return Error{Code: code, Resp: resp, Err: err}
}

func (e Error) Unwrap() error {
	return e.Err
}

func (e Error) Error() string {
	return fmt.Sprintf("http %d (%v): %v", e.Code, e.response(), e.Err)
}

func (e Error) response() interface{} {
	if e.Resp == nil {
		return http.StatusText(e.Code)
	}
	return e.Resp
}

// HandlerFunc is an http.HandlerFunc that returns an error instead of writing it.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// HandlerFuncAdapter serves Func and writes any error it returns as JSON.
//
// Errors that are not an Error become a 500. An Error whose code is not a 4xx or 5xx
// is logged as a bug and also becomes a 500.
type HandlerFuncAdapter struct {
	Log  *cmdlog.Logger
	Func HandlerFunc
}

func (a HandlerFuncAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := a.Func(w, r)
	if err == nil {
		return
	}

	var herr Error
	if !errors.As(err, &herr) {
		herr = Error{Code: http.StatusInternalServerError, Err: err}
	}
	if herr.Code < 400 || herr.Code > 599 {
		a.Log.Error.Printf("handler returned non error status %d for %s %s", herr.Code, r.Method, r.URL)
		herr = Error{Code: http.StatusInternalServerError, Err: err}
	}

	logger := statusLogger(a.Log, herr.Code)
	if errors.Is(err, context.Canceled) {
		// Client went away, usually a closed panel tab.
		logger = a.Log.Debug
	}
	logger.Printf("%s %s: %v", r.Method, r.URL, err)

	if ww, ok := w.(interface{ Written() bool }); ok && ww.Written() {
		return
	}
	writeJSON(a.Log, w, herr.Code, map[string]interface{}{
		"error": herr.response(),
	})
}

// statusLogger maps an HTTP status code to the cmdlog level it is logged at.
func statusLogger(clog *cmdlog.Logger, code int) *log.Logger {
	switch {
	case code >= 500:
		return clog.Error
	case code >= 400:
		return clog.Warn
	case code >= 300:
		return clog.Info
	default:
		return clog.Success
	}
}

func writeJSON(clog *cmdlog.Logger, w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		clog.Error.Printf("failed to marshal %T: %v", v, err)
		code = http.StatusInternalServerError
		b = []byte(`{"error":"Internal Server Error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
