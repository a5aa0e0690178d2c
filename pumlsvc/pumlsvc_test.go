package pumlsvc_test

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/xrand"

	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/lib/version"
	"oss.terrastruct.com/pumlview/pumlenc"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

func TestIsValid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		source string
		exp    bool
	}{
		{name: "well_formed", source: "@startuml\nA->B\n@enduml", exp: true},
		{name: "surrounding_whitespace", source: "\n\n  @startuml\nA->B\n@enduml  \n", exp: true},
		{name: "end_before_start", source: "@enduml\nA->B\n@startuml", exp: true},
		{name: "inline", source: "x @startuml y @enduml z", exp: true},
		{name: "no_markers", source: "A->B", exp: false},
		{name: "start_only", source: "@startuml\nA->B", exp: false},
		{name: "end_only", source: "A->B\n@enduml", exp: false},
		{name: "empty", source: "", exp: false},
		{name: "other_diagram_kind", source: "@startmindmap\n* a\n@endmindmap", exp: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.exp, pumlsvc.IsValid(tc.source))
		})
	}
}

func TestIsValidRandom(t *testing.T) {
	t.Parallel()

	for i := 0; i < 500; i++ {
		a := strip(xrand.String(rand.Intn(99), nil))
		b := strip(xrand.String(rand.Intn(99), nil))
		c := strip(xrand.String(rand.Intn(99), nil))

		assert.False(t, pumlsvc.IsValid(a+b+c))
		assert.False(t, pumlsvc.IsValid(a+pumlsvc.StartMarker+b))
		assert.False(t, pumlsvc.IsValid(a+pumlsvc.EndMarker+b))
		assert.True(t, pumlsvc.IsValid(a+pumlsvc.StartMarker+b+pumlsvc.EndMarker+c))
		assert.True(t, pumlsvc.IsValid(a+pumlsvc.EndMarker+b+pumlsvc.StartMarker+c))
	}
}

func strip(s string) string {
	s = strings.ReplaceAll(s, pumlsvc.StartMarker, "")
	return strings.ReplaceAll(s, pumlsvc.EndMarker, "")
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	const source = "@startuml\nA->B\n@enduml"

	encoded, err := pumlenc.Encode(source)
	require.NoError(t, err)

	url, err := pumlsvc.ImageURL(source, pumlsvc.Vector, "https://example.org/plantuml")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/plantuml/svg/"+encoded, url)

	url2, err := pumlsvc.ImageURL(source, pumlsvc.Vector, "https://example.org/plantuml")
	require.NoError(t, err)
	assert.Equal(t, url, url2)

	url, err = pumlsvc.ImageURL(source, pumlsvc.Raster, "https://example.org/plantuml/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/plantuml/png/"+encoded, url)

	seg := url[strings.LastIndexByte(url, '/')+1:]
	decoded, err := pumlenc.Decode(seg)
	require.NoError(t, err)
	assert.Equal(t, source, decoded)
}

func TestServiceDefaults(t *testing.T) {
	t.Parallel()

	s := pumlsvc.New(pumlsvc.Config{})
	assert.Equal(t, pumlsvc.DefaultServer, s.Server())

	url, err := s.ImageURL("@startuml\n@enduml", pumlsvc.Raster)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://www.plantuml.com/plantuml/png/"))
}

func TestFetch(t *testing.T) {
	t.Parallel()

	const source = "@startuml\nA->B\n@enduml"
	const svg = `<svg xmlns="http://www.w3.org/2000/svg"><text>A</text></svg>`
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 1, 2}

	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		if ua := r.Header.Get("User-Agent"); ua != version.UserAgent() {
			t.Errorf("unexpected user agent %q", ua)
		}
		encoded, err := pumlenc.Encode(source)
		if err != nil {
			t.Error(err)
		}
		switch r.URL.Path {
		case "/plantuml/svg/" + encoded:
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte(svg))
		case "/plantuml/png/" + encoded:
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(png)
		default:
			http.Error(w, "syntax error", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ctx := log.WithTB(context.Background(), t, nil)
	s := pumlsvc.New(pumlsvc.Config{
		Server:     srv.URL + "/plantuml",
		HTTPClient: srv.Client(),
	})

	b, err := s.Fetch(ctx, source, pumlsvc.Vector)
	require.NoError(t, err)
	assert.Equal(t, svg, string(b))
	assert.Equal(t, int64(1), atomic.LoadInt64(&requests))

	b, err = s.Fetch(ctx, source, pumlsvc.Raster)
	require.NoError(t, err)
	assert.Equal(t, png, b)
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests))

	_, err = s.Fetch(ctx, "@startuml\nbroken\n@enduml", pumlsvc.Vector)
	require.Error(t, err)
	var nerr *pumlsvc.NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, http.StatusBadRequest, nerr.StatusCode)
	assert.Equal(t, int64(3), atomic.LoadInt64(&requests))
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	calls := 0
	transportErr := errors.New("connection refused")
	s := pumlsvc.New(pumlsvc.Config{
		Server: "https://example.org/plantuml",
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				calls++
				return nil, transportErr
			}),
		},
	})

	ctx := log.WithTB(context.Background(), t, &slogtest.Options{IgnoreErrors: true})
	_, err := s.Fetch(ctx, "@startuml\nA->B\n@enduml", pumlsvc.Raster)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var nerr *pumlsvc.NetworkError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, 0, nerr.StatusCode)
	assert.True(t, strings.HasPrefix(nerr.URL, "https://example.org/plantuml/png/"))
	assert.True(t, errors.Is(err, transportErr))
}

func TestRenderTarget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".svg", pumlsvc.Vector.Ext())
	assert.Equal(t, ".png", pumlsvc.Raster.Ext())
	assert.Equal(t, "SVG", pumlsvc.Vector.String())

	for in, exp := range map[string]pumlsvc.RenderTarget{
		"svg": pumlsvc.Vector, "Vector": pumlsvc.Vector, "PNG": pumlsvc.Raster, "raster": pumlsvc.Raster,
	} {
		got, err := pumlsvc.ParseRenderTarget(in)
		assert.NoError(t, err)
		assert.Equal(t, exp, got, in)
	}
	_, err := pumlsvc.ParseRenderTarget("pdf")
	assert.EqualError(t, err, `"pdf" is not a supported format. Supported formats are: svg, png`)

	assert.Equal(t, pumlsvc.Raster, pumlsvc.TargetFromPath("/out/diagram.PNG"))
	assert.Equal(t, pumlsvc.Vector, pumlsvc.TargetFromPath("/out/diagram.svg"))
	assert.Equal(t, pumlsvc.Vector, pumlsvc.TargetFromPath("/out/diagram"))
}
