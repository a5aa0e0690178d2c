// Package xmain is the main stub of pumlview. It wires flags, signals, logging and
// shutdown around a RunFunc and turns its error into an exit code.
package xmain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"
)

// shutdownTimeout bounds how long Run may take to return after a signal.
const shutdownTimeout = time.Minute

type RunFunc func(context.Context, *State) error

func Main(run RunFunc) {
	var name string
	var args []string
	if len(os.Args) > 0 {
		name, args = os.Args[0], os.Args[1:]
	}
	pwd, _ := os.Getwd()

	env := xos.NewEnv(os.Environ())
	ms := &State{
		Name: name,
		PWD:  pwd,

		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,

		Log:  cmdlog.New(env, os.Stderr),
		Env:  env,
		Opts: NewOpts(env, args),
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	err := ms.Main(context.Background(), sigs, run)
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		ms.Log.Error.Print(msg)
	}
	os.Exit(code)
}

// exitStatus returns the exit code and the message to log for err.
func exitStatus(err error) (int, string) {
	var eerr ExitError
	if errors.As(err, &eerr) {
		return eerr.Code, eerr.Message
	}
	var uerr UsageError
	if errors.As(err, &uerr) {
		return 1, err.Error() + "\nRun with --help to see usage."
	}
	return 1, err.Error()
}

// State is everything a command may touch of its process. Tests substitute every
// field, see TestState.
type State struct {
	Name string
	PWD  string

	Stdin  io.Reader
	Stdout io.WriteCloser
	Stderr io.WriteCloser

	Log  *cmdlog.Logger
	Env  *xos.Env
	Opts *Opts
}

// Main runs run until it returns or a signal arrives. After a signal run's context is
// canceled and run gets shutdownTimeout to return.
func (ms *State) Main(ctx context.Context, sigs <-chan os.Signal, run RunFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, ms)
	}()

	var sig os.Signal
	select {
	case err := <-done:
		return err
	case sig = <-sigs:
	}

	ms.Log.Warn.Printf("received signal %v: shutting down...", sig)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to shutdown: %w", err)
		}
		if sig == syscall.SIGTERM {
			return nil
		}
		// Interrupted by the user.
		return ExitError{Code: 1}
	case <-time.After(shutdownTimeout):
		return ExitErrorf(1, "took longer than %v to shutdown: exiting forcefully", shutdownTimeout)
	}
}

// ExitError exits with Code after logging Message, if any.
type ExitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func ExitErrorf(code int, msg string, v ...interface{}) ExitError {
	return ExitError{Code: code, Message: fmt.Sprintf(msg, v...)}
}

func (ee ExitError) Error() string {
	if ee.Message == "" {
		return fmt.Sprintf("exiting with code %d", ee.Code)
	}
	return fmt.Sprintf("exiting with code %d: %s", ee.Code, ee.Message)
}

// UsageError is an invalid invocation. Main points the user at --help.
type UsageError struct {
	Message string `json:"message"`
}

func UsageErrorf(msg string, v ...interface{}) UsageError {
	return UsageError{Message: fmt.Sprintf(msg, v...)}
}

func (ue UsageError) Error() string {
	return "bad usage: " + ue.Message
}

// ReadPath reads fp relative to the working directory. "-" reads stdin.
func (ms *State) ReadPath(fp string) ([]byte, error) {
	if fp == "-" {
		return io.ReadAll(ms.Stdin)
	}
	return os.ReadFile(ms.AbsPath(fp))
}

// AbsPath joins relative paths onto the working directory of the command.
func (ms *State) AbsPath(fp string) string {
	if fp == "-" || filepath.IsAbs(fp) {
		return fp
	}
	return filepath.Join(ms.PWD, fp)
}

// HumanPath makes absolute paths relative to the working directory of the command
// for display. Paths outside of it are returned as is.
func (ms *State) HumanPath(fp string) string {
	if fp == "-" || !filepath.IsAbs(fp) || ms.PWD == "" {
		return fp
	}
	rel, err := filepath.Rel(ms.PWD, fp)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fp
	}
	return rel
}
