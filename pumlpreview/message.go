package pumlpreview

import (
	"encoding/json"
	"fmt"

	"oss.terrastruct.com/pumlview/pumlsvc"
)

// Message is sent from a panel's surface to the controller.
// The set of implementations is closed: ExportMessage, VisibilityMessage and
// DisposeMessage.
type Message interface {
	message()
}

// ExportMessage asks for the active document to be exported.
type ExportMessage struct {
	Target pumlsvc.RenderTarget
}

// VisibilityMessage reports the surface being shown or hidden.
type VisibilityMessage struct {
	Visible bool
}

// DisposeMessage reports the surface was closed.
type DisposeMessage struct{}

func (ExportMessage) message()     {}
func (VisibilityMessage) message() {}
func (DisposeMessage) message()    {}

const (
	typeExportSVG  = "exportSVG"
	typeExportPNG  = "exportPNG"
	typeVisibility = "visibility"
	typeDispose    = "dispose"
)

type wireMessage struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
}

// DecodeMessage parses the JSON form sent by panel surfaces.
func DecodeMessage(b []byte) (Message, error) {
	var wm wireMessage
	err := json.Unmarshal(b, &wm)
	if err != nil {
		return nil, fmt.Errorf("failed to decode panel message: %w", err)
	}
	switch wm.Type {
	case typeExportSVG:
		return ExportMessage{Target: pumlsvc.Vector}, nil
	case typeExportPNG:
		return ExportMessage{Target: pumlsvc.Raster}, nil
	case typeVisibility:
		if wm.Visible == nil {
			return nil, fmt.Errorf("panel message %q missing visible", wm.Type)
		}
		return VisibilityMessage{Visible: *wm.Visible}, nil
	case typeDispose:
		return DisposeMessage{}, nil
	}
	return nil, fmt.Errorf("unknown panel message type %q", wm.Type)
}

// EncodeMessage is the inverse of DecodeMessage.
func EncodeMessage(m Message) ([]byte, error) {
	var wm wireMessage
	switch m := m.(type) {
	case ExportMessage:
		wm.Type = typeExportSVG
		if m.Target == pumlsvc.Raster {
			wm.Type = typeExportPNG
		}
	case VisibilityMessage:
		wm.Type = typeVisibility
		wm.Visible = &m.Visible
	case DisposeMessage:
		wm.Type = typeDispose
	default:
		return nil, fmt.Errorf("unknown panel message %T", m)
	}
	return json.Marshal(wm)
}
