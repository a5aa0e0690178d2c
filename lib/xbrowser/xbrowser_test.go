package xbrowser_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/pumlview/lib/xbrowser"
)

func TestOpenURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	env := xos.NewEnv(nil)
	env.Setenv("BROWSER", "0")
	assert.ErrorIs(t, xbrowser.OpenURL(ctx, env, "http://localhost"), xbrowser.ErrDisabled)
	assert.ErrorIs(t, xbrowser.OpenFile(ctx, env, "a.svg"), xbrowser.ErrDisabled)

	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}

	// $BROWSER is run through sh with the URL as its argument.
	out := filepath.Join(t.TempDir(), "url")
	env.Setenv("BROWSER", "echo >"+out)
	require.NoError(t, xbrowser.OpenURL(ctx, env, "http://localhost:8080/panel/x"))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/panel/x\n", string(b))

	env.Setenv("BROWSER", "false")
	assert.Error(t, xbrowser.OpenURL(ctx, env, "http://localhost"))
}
