package pumlsvc

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RenderTarget selects the image format a server renders and the file extension
// exports are written with.
type RenderTarget int

const (
	Vector RenderTarget = iota
	Raster
)

var targets = []RenderTarget{Vector, Raster}

// Suffix is the server path segment for t.
func (t RenderTarget) Suffix() string {
	switch t {
	case Raster:
		return "png"
	default:
		return "svg"
	}
}

// Ext includes the leading dot.
func (t RenderTarget) Ext() string {
	return "." + t.Suffix()
}

func (t RenderTarget) String() string {
	return strings.ToUpper(t.Suffix())
}

// ParseRenderTarget accepts svg, vector, png and raster in any case.
func ParseRenderTarget(s string) (RenderTarget, error) {
	switch strings.ToLower(s) {
	case "svg", "vector":
		return Vector, nil
	case "png", "raster":
		return Raster, nil
	}
	return Vector, fmt.Errorf("%q is not a supported format. Supported formats are: svg, png", s)
}

// TargetFromPath picks the target matching the extension of an output path.
// Paths with other extensions default to Vector.
func TargetFromPath(fp string) RenderTarget {
	ext := strings.ToLower(filepath.Ext(fp))
	for _, t := range targets {
		if t.Ext() == ext {
			return t
		}
	}
	return Vector
}
