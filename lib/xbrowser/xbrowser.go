// Package xbrowser opens URLs and files with the user's browser or desktop handler.
package xbrowser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/pkg/browser"

	"oss.terrastruct.com/xos"
)

// ErrDisabled is returned when $BROWSER is set to 0.
var ErrDisabled = errors.New("browser disabled with $BROWSER=0")

// OpenURL opens url with $BROWSER when set, otherwise with the system default.
func OpenURL(ctx context.Context, env *xos.Env, url string) error {
	browserEnv := env.Getenv("BROWSER")
	switch browserEnv {
	case "":
		return browser.OpenURL(url)
	case "0":
		return ErrDisabled
	}
	browserSh := fmt.Sprintf("%s \"$1\"", browserEnv)
	cmd := exec.CommandContext(ctx, "sh", "-c", browserSh, "--", url)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %v (out: %q): %w", cmd.Args, out, err)
	}
	return nil
}

// OpenFile opens path with the desktop's handler for its type.
func OpenFile(ctx context.Context, env *xos.Env, path string) error {
	if env.Getenv("BROWSER") == "0" {
		return ErrDisabled
	}
	return browser.OpenFile(path)
}
