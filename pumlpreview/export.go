package pumlpreview

import (
	"context"
	"fmt"
	"path/filepath"

	"cdr.dev/slog"

	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

const MessageNoDocument = "Please open a PlantUML file to export."

func (c *Controller) export(ctx context.Context, target pumlsvc.RenderTarget) error {
	doc, ok := c.host.ActiveDocument()
	if !ok || !doc.Recognized() {
		return c.warn(ctx, MessageNoDocument)
	}
	if !pumlsvc.IsValid(doc.Text) {
		return c.warn(ctx, MessageInvalid)
	}

	fp, ok, err := c.host.SaveDialog(ctx, SaveOptions{
		Title:       fmt.Sprintf("Export %s", target),
		DefaultPath: defaultExportPath(doc, target),
		Target:      target,
	})
	if err != nil {
		return c.fail(ctx, target, err)
	}
	if !ok {
		log.Debug(ctx, "export cancelled", slog.F("target", target.String()))
		return nil
	}

	err = c.write(ctx, doc, target, fp)
	if err != nil {
		return c.fail(ctx, target, err)
	}

	action, err := c.host.Notify(ctx, Notification{
		Level:   LevelInfo,
		Message: fmt.Sprintf("%s exported successfully!", target),
		Detail:  fp,
		Actions: []string{ActionOpenFile, ActionShowInFolder},
	})
	if err != nil {
		log.Warn(ctx, "failed to show export notification", slog.Error(err))
		return nil
	}
	switch action {
	case ActionOpenFile:
		err = c.host.OpenFile(ctx, fp)
	case ActionShowInFolder:
		err = c.host.RevealFile(ctx, fp)
	}
	if err != nil {
		log.Warn(ctx, "failed to open exported file", slog.F("path", fp), slog.Error(err))
	}
	return nil
}

func (c *Controller) write(ctx context.Context, doc Document, target pumlsvc.RenderTarget, fp string) error {
	p := c.host.Progress(ctx, fmt.Sprintf("Exporting %s", target))
	defer p.Done()

	p.Report("Rendering...")
	b, err := c.svc.Fetch(ctx, doc.Text, target)
	if err != nil {
		return err
	}

	p.Report("Writing...")
	return c.host.WriteFile(ctx, fp, b)
}

// defaultExportPath places the export next to its source.
func defaultExportPath(doc Document, target pumlsvc.RenderTarget) string {
	name := doc.BaseName() + target.Ext()
	if doc.Path == "" {
		return name
	}
	return filepath.Join(filepath.Dir(doc.Path), name)
}

func (c *Controller) warn(ctx context.Context, msg string) error {
	_, err := c.host.Notify(ctx, Notification{
		Level:   LevelWarning,
		Message: msg,
	})
	if err != nil {
		log.Warn(ctx, "failed to show warning", slog.F("warning", msg), slog.Error(err))
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, target pumlsvc.RenderTarget, err error) error {
	err = fmt.Errorf("failed to export %s: %w", target, err)
	_, nerr := c.host.Notify(ctx, Notification{
		Level:   LevelError,
		Message: err.Error(),
	})
	if nerr != nil {
		log.Warn(ctx, "failed to show error", slog.Error(nerr))
	}
	return err
}
