package pumlpreview

import (
	"context"

	"oss.terrastruct.com/pumlview/pumlsvc"
)

// Host is everything the controller needs from the environment it runs in.
type Host interface {
	// ActiveDocument returns the document the user is currently working on.
	ActiveDocument() (Document, bool)
	CreatePanel(ctx context.Context) (Panel, error)
	// SaveDialog asks for a destination path. ok is false when the user cancelled.
	SaveDialog(ctx context.Context, opts SaveOptions) (path string, ok bool, err error)
	Progress(ctx context.Context, title string) Progress
	WriteFile(ctx context.Context, path string, data []byte) error
	// Notify shows n and returns the action the user picked, "" when dismissed.
	Notify(ctx context.Context, n Notification) (action string, err error)
	OpenFile(ctx context.Context, path string) error
	RevealFile(ctx context.Context, path string) error
}

// Panel is the display surface the preview is rendered into.
type Panel interface {
	ID() string
	SetContent(Content)
	Reveal()
	// Subscribe registers fn for messages sent by the surface. The returned func
	// unsubscribes; messages received after it returns are dropped.
	Subscribe(fn func(Message)) (unsubscribe func())
	Dispose()
}

type Progress interface {
	Report(message string)
	Done()
}

type SaveOptions struct {
	Title       string
	DefaultPath string
	Target      pumlsvc.RenderTarget
}

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type Notification struct {
	Level   Level
	Message string
	Detail  string
	Actions []string
}

const (
	ActionOpenFile     = "Open File"
	ActionShowInFolder = "Show in Folder"
)
