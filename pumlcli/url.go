package pumlcli

import (
	"context"
	"fmt"

	"oss.terrastruct.com/pumlview/lib/xbrowser"
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

func urlCmd(ctx context.Context, ms *xmain.State, cfg *Config, format string, open bool) error {
	args := ms.Opts.Flags.Args()
	if len(args) != 2 {
		return xmain.UsageErrorf("url must be passed one file")
	}
	doc, err := readDocument(ms, args[1])
	if err != nil {
		return err
	}
	if !pumlsvc.IsValid(doc.Text) {
		return xmain.ExitErrorf(1, "%s", pumlpreview.MessageInvalid)
	}
	target, err := targetFor(format, "")
	if err != nil {
		return err
	}

	url, err := newService(ms, cfg).ImageURL(doc.Text, target)
	if err != nil {
		return err
	}
	fmt.Fprintln(ms.Stdout, url)

	if open {
		ms.Log.Info.Printf("opening %s", ms.HumanPath(doc.Path))
		err = xbrowser.OpenURL(ctx, ms.Env, url)
		if err != nil {
			ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
		}
	}
	return nil
}
