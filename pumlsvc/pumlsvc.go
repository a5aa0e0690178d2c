// Package pumlsvc builds PlantUML server image URLs and fetches rendered diagrams.
package pumlsvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cdr.dev/slog"
	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/lib/version"
	"oss.terrastruct.com/pumlview/pumlenc"
)

// DefaultServer is the public PlantUML instance.
const DefaultServer = "https://www.plantuml.com/plantuml"

const (
	StartMarker = "@startuml"
	EndMarker   = "@enduml"
)

// IsValid reports whether source contains both diagram markers.
// Only presence is checked: an end marker before the start marker still passes.
func IsValid(source string) bool {
	source = strings.TrimSpace(source)
	return strings.Contains(source, StartMarker) && strings.Contains(source, EndMarker)
}

// ImageURL returns serverBase/<svg|png>/<encoded source>.
func ImageURL(source string, target RenderTarget, serverBase string) (string, error) {
	encoded, err := pumlenc.Encode(source)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(serverBase, "/") + "/" + target.Suffix() + "/" + encoded, nil
}

// NetworkError is returned by Fetch when the server could not be reached or answered
// with a non 2xx status.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("plantuml server responded to %s with %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("failed to reach plantuml server at %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type Config struct {
	// Server is the base address of the rendering server. Defaults to DefaultServer.
	Server string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Service renders diagrams against a single server.
// It holds no per request state and is safe for concurrent use.
type Service struct {
	server string
	client *http.Client
}

func New(cfg Config) *Service {
	s := &Service{
		server: strings.TrimRight(cfg.Server, "/"),
		client: cfg.HTTPClient,
	}
	if s.server == "" {
		s.server = DefaultServer
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	return s
}

func (s *Service) Server() string {
	return s.server
}

func (s *Service) ImageURL(source string, target RenderTarget) (string, error) {
	return ImageURL(source, target, s.server)
}

// Fetch performs exactly one request for the rendered image of source.
// Vector targets return SVG markup and raster targets PNG bytes, both verbatim.
func (s *Service) Fetch(ctx context.Context, source string, target RenderTarget) (_ []byte, err error) {
	defer xdefer.Errorf(&err, "failed to fetch %s", target)

	url, err := s.ImageURL(source, target)
	if err != nil {
		return nil, err
	}

	log.Debug(ctx, "fetching rendered diagram", slog.F("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// PlantUML servers still render an image describing syntax errors. Drain it so
		// the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	return b, nil
}
