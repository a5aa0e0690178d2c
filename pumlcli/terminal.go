package pumlcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"oss.terrastruct.com/pumlview/lib/env"
	"oss.terrastruct.com/pumlview/lib/xbrowser"
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
)

const dismiss = "Dismiss"

// terminal implements the dialog half of pumlpreview.Host with terminal prompts.
// Without a TTY, or under CI, every dialog accepts its default.
type terminal struct {
	ms          *xmain.State
	interactive bool
}

func newTerminal(ms *xmain.State) *terminal {
	return &terminal{
		ms:          ms,
		interactive: !env.CI(ms.Env) && isTerminal(ms.Stdin) && isTerminal(ms.Stderr),
	}
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t *terminal) SaveDialog(ctx context.Context, opts pumlpreview.SaveOptions) (string, bool, error) {
	if !t.interactive {
		t.ms.Log.Info.Printf("%s: %s", opts.Title, t.ms.HumanPath(opts.DefaultPath))
		return opts.DefaultPath, true, nil
	}

	p := promptui.Prompt{
		Label:     opts.Title,
		Default:   t.ms.HumanPath(opts.DefaultPath),
		AllowEdit: true,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("path is required")
			}
			if filepath.Ext(s) != opts.Target.Ext() {
				return fmt.Errorf("path must end in %s", opts.Target.Ext())
			}
			return nil
		},
		Stdin:  io.NopCloser(t.ms.Stdin),
		Stdout: t.ms.Stderr,
	}
	fp, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
			return "", false, nil
		}
		return "", false, err
	}
	return t.ms.AbsPath(strings.TrimSpace(fp)), true, nil
}

func (t *terminal) Progress(ctx context.Context, title string) pumlpreview.Progress {
	if !t.interactive {
		return &logProgress{ms: t.ms, title: title}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(t.ms.Stderr),
		progressbar.OptionSetDescription(title),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &barProgress{title: title, bar: bar}
}

type barProgress struct {
	title string
	bar   *progressbar.ProgressBar
}

func (p *barProgress) Report(msg string) {
	p.bar.Describe(fmt.Sprintf("%s: %s", p.title, msg))
	_ = p.bar.Add(1)
}

func (p *barProgress) Done() {
	_ = p.bar.Finish()
}

type logProgress struct {
	ms    *xmain.State
	title string
}

func (p *logProgress) Report(msg string) {
	p.ms.Log.Info.Printf("%s: %s", p.title, msg)
}

func (p *logProgress) Done() {}

// WriteFile replaces path atomically so that a failed write never leaves a partial
// file behind.
func (t *terminal) WriteFile(ctx context.Context, path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0644)
}

func (t *terminal) Notify(ctx context.Context, n pumlpreview.Notification) (string, error) {
	msg := n.Message
	if n.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, n.Detail)
	}
	switch n.Level {
	case pumlpreview.LevelError:
		t.ms.Log.Error.Print(msg)
	case pumlpreview.LevelWarning:
		t.ms.Log.Warn.Print(msg)
	default:
		t.ms.Log.Success.Print(msg)
	}

	if !t.interactive || len(n.Actions) == 0 {
		return "", nil
	}
	s := promptui.Select{
		Label:  "Next",
		Items:  append(append([]string(nil), n.Actions...), dismiss),
		Stdin:  io.NopCloser(t.ms.Stdin),
		Stdout: t.ms.Stderr,
	}
	_, action, err := s.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
			return "", nil
		}
		return "", err
	}
	if action == dismiss {
		return "", nil
	}
	return action, nil
}

func (t *terminal) OpenFile(ctx context.Context, path string) error {
	return xbrowser.OpenFile(ctx, t.ms.Env, path)
}

// RevealFile opens the directory containing path.
func (t *terminal) RevealFile(ctx context.Context, path string) error {
	return xbrowser.OpenFile(ctx, t.ms.Env, filepath.Dir(path))
}
