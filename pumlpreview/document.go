package pumlpreview

import (
	"path/filepath"
	"strings"

	"oss.terrastruct.com/pumlview/lib/go2"
)

// LanguageID tags documents the preview recognizes.
const LanguageID = "plantuml"

// Extensions lists the file extensions mapped to LanguageID.
var Extensions = []string{".puml", ".plantuml", ".pu"}

// LanguageForPath returns LanguageID for PlantUML files and "" otherwise.
func LanguageForPath(fp string) string {
	if go2.Contains(Extensions, strings.ToLower(filepath.Ext(fp))) {
		return LanguageID
	}
	return ""
}

// Document is a snapshot of a source document owned by the host.
type Document struct {
	Path       string
	LanguageID string
	Text       string
}

func (d Document) Recognized() bool {
	return d.LanguageID == LanguageID
}

// BaseName is the file name without directory or extension, "diagram" when unnamed.
func (d Document) BaseName() string {
	base := filepath.Base(d.Path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "diagram"
	}
	return base
}
