package pumlcli

import (
	"context"
	"errors"

	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
)

// exportHost is the pumlpreview.Host of the export command: one fixed document and
// no panel.
type exportHost struct {
	*terminal
	doc pumlpreview.Document
	// outputPath answers the save dialog when set.
	outputPath string
}

var _ pumlpreview.Host = &exportHost{}

func (h *exportHost) ActiveDocument() (pumlpreview.Document, bool) {
	return h.doc, true
}

func (h *exportHost) CreatePanel(ctx context.Context) (pumlpreview.Panel, error) {
	return nil, errors.New("export does not display a preview")
}

func (h *exportHost) SaveDialog(ctx context.Context, opts pumlpreview.SaveOptions) (string, bool, error) {
	if h.outputPath != "" {
		return h.outputPath, true, nil
	}
	return h.terminal.SaveDialog(ctx, opts)
}

func exportCmd(ctx context.Context, ms *xmain.State, cfg *Config, format string) error {
	args := ms.Opts.Flags.Args()[1:]
	if len(args) == 0 || len(args) > 2 {
		return xmain.UsageErrorf("export must be passed a file and optionally an output path")
	}

	doc, err := readDocument(ms, args[0])
	if err != nil {
		return err
	}
	var outputPath string
	if len(args) == 2 {
		if args[1] == "-" {
			return xmain.UsageErrorf("export cannot write to stdout")
		}
		outputPath = ms.AbsPath(args[1])
	}
	target, err := targetFor(format, outputPath)
	if err != nil {
		return err
	}

	h := &exportHost{
		terminal:   newTerminal(ms),
		doc:        doc,
		outputPath: outputPath,
	}
	ctrl := pumlpreview.New(h, newService(ms, cfg))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	err = ctrl.Export(ctx, target)
	if err != nil {
		// Already reported by the error notification.
		ms.Log.Debug.Print(err)
		return xmain.ExitError{Code: 1}
	}
	return nil
}

// readDocument reads fp as a PlantUML document regardless of its extension.
func readDocument(ms *xmain.State, fp string) (pumlpreview.Document, error) {
	if fp == "-" {
		return pumlpreview.Document{}, xmain.UsageErrorf("reading from stdin is not supported, pass a file")
	}
	fp = ms.AbsPath(fp)
	b, err := ms.ReadPath(fp)
	if err != nil {
		return pumlpreview.Document{}, xmain.UsageErrorf("%v", err)
	}
	if pumlpreview.LanguageForPath(fp) == "" {
		ms.Log.Debug.Printf("treating %s as PlantUML", ms.HumanPath(fp))
	}
	return pumlpreview.Document{
		Path:       fp,
		LanguageID: pumlpreview.LanguageID,
		Text:       string(b),
	}, nil
}
