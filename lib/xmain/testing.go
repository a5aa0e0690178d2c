package xmain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"
)

// TestState runs a RunFunc in-process the way Main would, for tests.
// Stdout and Stderr are captured unless set.
type TestState struct {
	Run  RunFunc
	Env  *xos.Env
	Args []string
	PWD  string

	Stdin  io.Reader
	Stdout io.WriteCloser
	Stderr io.WriteCloser

	ms   *State
	sigs chan os.Signal
	done chan error

	mu     sync.Mutex
	stdout *bytes.Buffer
}

// Start runs ts.Run in a goroutine. Args[0] is the command name.
func (ts *TestState) Start(tb testing.TB, ctx context.Context) {
	tb.Helper()

	if ts.done != nil {
		tb.Fatal("xmain.TestState.Start cannot be called twice")
	}
	if ts.Env == nil {
		ts.Env = xos.NewEnv(nil)
	}
	if ts.Stdin == nil {
		ts.Stdin = bytes.NewReader(nil)
	}
	if ts.Stdout == nil {
		ts.stdout = &bytes.Buffer{}
		ts.Stdout = nopCloser{&lockedWriter{mu: &ts.mu, w: ts.stdout}}
	}
	if ts.Stderr == nil {
		ts.Stderr = nopCloser{io.Discard}
	}

	var name string
	var args []string
	if len(ts.Args) > 0 {
		name = ts.Args[0]
		args = ts.Args[1:]
	}

	ts.ms = &State{
		Name: name,
		PWD:  ts.PWD,

		Stdin:  ts.Stdin,
		Stdout: ts.Stdout,
		Stderr: ts.Stderr,

		Log:  cmdlog.NewTB(ts.Env, tb),
		Env:  ts.Env,
		Opts: NewOpts(ts.Env, args),
	}

	ts.sigs = make(chan os.Signal, 1)
	ts.done = make(chan error, 1)
	go func() {
		ts.done <- ts.ms.Main(ctx, ts.sigs, ts.Run)
	}()
}

// Wait returns the result of ts.Run.
func (ts *TestState) Wait(ctx context.Context) error {
	select {
	case err := <-ts.done:
		ts.done = closedErrCh(err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup shuts the command down with SIGTERM if it is still running.
func (ts *TestState) Cleanup(tb testing.TB) {
	tb.Helper()

	select {
	case ts.sigs <- syscall.SIGTERM:
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := ts.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		tb.Errorf("command did not shut down: %v", err)
	}
}

// StdoutString returns what was written to the captured stdout.
func (ts *TestState) StdoutString() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stdout == nil {
		return ""
	}
	return ts.stdout.String()
}

func closedErrCh(err error) chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
