package pumlenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"oss.terrastruct.com/diff"
)

func TestBasic(t *testing.T) {
	const script = `@startuml
Alice -> Bob: Authentication Request
Bob --> Alice: Authentication Response
@enduml
`

	encoded, err := Encode(script)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}

	diff.AssertStringEq(t, script, decoded)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "one_byte", text: "x"},
		{name: "markers_only", text: "@startuml\n@enduml"},
		{name: "scenario", text: "@startuml\nA->B\n@enduml"},
		{name: "unicode", text: "@startuml\nÄlice -> 鮑勃 : こんにちは 👋\n@enduml"},
		{name: "crlf", text: "@startuml\r\nA -> B\r\n@enduml\r\n"},
		{name: "long", text: "@startuml\n" + strings.Repeat("participant P\nP -> P : loop\n", 500) + "@enduml"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := Encode(tc.text)
			assert.NoError(t, err)
			assert.Equal(t, 0, len(encoded)%4)
			assert.NotContains(t, encoded, "@startuml")
			assert.NotContains(t, encoded, "@enduml")
			assert.Equal(t, -1, strings.IndexFunc(encoded, func(r rune) bool {
				return !strings.ContainsRune(alphabet, r)
			}))

			decoded, err := Decode(encoded)
			assert.NoError(t, err)
			assert.Equal(t, tc.text, decoded)
		})
	}
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	const script = "@startuml\nA->B\n@enduml"
	a, err := Encode(script)
	assert.NoError(t, err)
	b, err := Encode(script)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGolden(t *testing.T) {
	t.Parallel()

	const text = "Bob -> Alice : hello"

	// Encoded by plantuml.com and the plantuml-encoder JS package.
	decoded, err := Decode("SyfFKj2rKt3CoKnELR1Io4ZDoSa70000")
	assert.NoError(t, err)
	assert.Equal(t, text, decoded)

	// Same deflate data followed by the empty final block compress/flate writes.
	encoded, err := Encode(text)
	assert.NoError(t, err)
	assert.Equal(t, "SifFKj2rKt3CoKnELR1Io4ZDoSa71000__y0", encoded)
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	_, err := Decode("abc+/=")
	assert.ErrorContains(t, err, "failed to decode plantuml source")
	assert.ErrorContains(t, err, "invalid character '+'")

	_, err = Decode("SyfF Kj2r")
	assert.ErrorContains(t, err, "invalid character ' ' at offset 4")

	_, err = Decode("SyfFé000")
	assert.ErrorContains(t, err, "invalid character 'é' at offset 4")

	_, err = Decode("0")
	assert.Error(t, err)
}
