package pumlpreview

import (
	"bytes"
	"embed"
	"html/template"

	"oss.terrastruct.com/pumlview/pumlsvc"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const (
	MessagePrompt  = "Open a PlantUML file (.puml, .plantuml, .pu) to see the preview."
	MessageInvalid = "No valid PlantUML diagram found. Make sure your file contains @startuml and @enduml tags."
	MessageLoad    = "Failed to load PlantUML diagram. Please check your diagram syntax or server connection."
)

type ContentKind string

const (
	ContentPrompt  ContentKind = "prompt"
	ContentInvalid ContentKind = "invalid"
	ContentDiagram ContentKind = "diagram"
	ContentError   ContentKind = "error"
)

// Content is one render of the preview.
// Surfaces must ignore content with a Revision lower than one they already showed.
type Content struct {
	Revision int64         `json:"revision"`
	Kind     ContentKind   `json:"kind"`
	Title    string        `json:"title"`
	Message  string        `json:"message,omitempty"`
	ImageURL string        `json:"imageURL,omitempty"`
	HTML     template.HTML `json:"html"`
}

// NewContent selects what to show for doc. ok is false when there is no active
// document. Only a recognized and valid document gets an image URL.
func NewContent(svc *pumlsvc.Service, doc Document, ok bool) Content {
	c := Content{
		Title: "PlantUML Preview",
	}
	switch {
	case !ok || !doc.Recognized():
		c.Kind = ContentPrompt
		c.Message = MessagePrompt
	case !pumlsvc.IsValid(doc.Text):
		c.Kind = ContentInvalid
		c.Message = MessageInvalid
	default:
		url, err := svc.ImageURL(doc.Text, pumlsvc.Vector)
		if err != nil {
			c.Kind = ContentError
			c.Message = err.Error()
			break
		}
		c.Kind = ContentDiagram
		c.ImageURL = url
	}
	if ok && doc.Path != "" {
		c.Title = "PlantUML Preview: " + doc.BaseName()
	}
	return c
}

// WithBody returns c with HTML set to the rendered body fragment.
func (c Content) WithBody() (Content, error) {
	b := &bytes.Buffer{}
	err := templates.ExecuteTemplate(b, "body", struct {
		Content
		LoadError string
	}{c, MessageLoad})
	if err != nil {
		return c, err
	}
	c.HTML = template.HTML(b.String())
	return c, nil
}

type PageOptions struct {
	PanelID    string
	SocketPath string
	// StaticPrefix is where panel.js and panel.css are served, without a trailing slash.
	StaticPrefix string
	// PanzoomURL locates the pan/zoom library script.
	PanzoomURL string
	DevMode    bool
}

// DefaultPanzoomURL is the pinned release of the panzoom library.
const DefaultPanzoomURL = "https://unpkg.com/panzoom@9.4.3/dist/panzoom.min.js"

// RenderPage renders the full document a surface bootstraps from.
func RenderPage(c Content, opts PageOptions) ([]byte, error) {
	if opts.PanzoomURL == "" {
		opts.PanzoomURL = DefaultPanzoomURL
	}
	b := &bytes.Buffer{}
	err := templates.ExecuteTemplate(b, "page", struct {
		PageOptions
		Content Content
	}{opts, c})
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
