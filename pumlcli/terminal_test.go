package pumlcli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/pumlview/lib/xbrowser"
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func testState(t *testing.T, dir string) *xmain.State {
	ms := &xmain.State{
		Name: "pumlview",
		PWD:  dir,

		Stdin:  bytes.NewReader(nil),
		Stdout: nopWriteCloser{io.Discard},
		Stderr: nopWriteCloser{io.Discard},

		Env: xos.NewEnv(nil),
	}
	ms.Env.Setenv("BROWSER", "0")
	ms.Log = cmdlog.NewTB(ms.Env, t)
	return ms
}

func TestTerminalNonInteractive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	term := newTerminal(testState(t, dir))
	assert.False(t, term.interactive)

	fp, ok, err := term.SaveDialog(ctx, pumlpreview.SaveOptions{
		Title:       "Export as SVG",
		DefaultPath: filepath.Join(dir, "a.svg"),
		Target:      pumlsvc.Vector,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "a.svg"), fp)

	action, err := term.Notify(ctx, pumlpreview.Notification{
		Level:   pumlpreview.LevelInfo,
		Message: "SVG exported successfully!",
		Actions: []string{pumlpreview.ActionOpenFile, pumlpreview.ActionShowInFolder},
	})
	require.NoError(t, err)
	assert.Equal(t, "", action)

	p := term.Progress(ctx, "Exporting SVG")
	p.Report("Rendering...")
	p.Done()

	assert.ErrorIs(t, term.OpenFile(ctx, fp), xbrowser.ErrDisabled)
	assert.ErrorIs(t, term.RevealFile(ctx, fp), xbrowser.ErrDisabled)
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	term := newTerminal(testState(t, dir))

	fp := filepath.Join(dir, "out", "a.svg")
	require.NoError(t, term.WriteFile(ctx, fp, []byte("<svg/>")))
	require.NoError(t, term.WriteFile(ctx, fp, []byte("<svg></svg>")))

	b, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "<svg></svg>", string(b))

	entries, err := os.ReadDir(filepath.Dir(fp))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.svg", entries[0].Name())

	// A directory in the way fails the rename and leaves it untouched.
	blocked := filepath.Join(dir, "blocked.svg")
	require.NoError(t, os.Mkdir(blocked, 0755))
	require.Error(t, term.WriteFile(ctx, blocked, []byte("<svg/>")))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"blocked.svg", "out"}, names)
}

func TestTargetFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		format     string
		outputPath string
		exp        pumlsvc.RenderTarget
		expErr     string
	}{
		{name: "default", exp: pumlsvc.Vector},
		{name: "format", format: "png", exp: pumlsvc.Raster},
		{name: "path", outputPath: "a.png", exp: pumlsvc.Raster},
		{name: "both", format: "svg", outputPath: "a.svg", exp: pumlsvc.Vector},
		{name: "mismatch", format: "svg", outputPath: "a.png", expErr: "does not match"},
		{name: "bad_format", format: "gif", expErr: "is not a supported format"},
		{name: "bad_path", outputPath: "a.pdf", expErr: "is not a supported output path"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			target, err := targetFor(tc.format, tc.outputPath)
			if tc.expErr != "" {
				assert.ErrorContains(t, err, tc.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, target)
		})
	}
}
