// Package pumlenc implements the text encoding PlantUML servers accept in image URLs.
//
// A diagram is compressed with raw DEFLATE and written with PlantUML's base64 alphabet,
// which orders digits first and uses '-' and '_' as the last two symbols. Every group of
// three input bytes becomes exactly four characters, with the final group zero padded.
package pumlenc

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"oss.terrastruct.com/xdefer"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

var encoding = base64.NewEncoding(alphabet).WithPadding(base64.NoPadding)

// Encode takes PlantUML source and encodes it as a compressed string for embedding in
// server URLs.
//
// compress/flate always ends the stream with an empty final stored block, so the
// result is a few characters longer than the output of zlib based encoders. Every
// PlantUML decoder inflates both to the same text.
func Encode(raw string) (_ string, err error) {
	defer xdefer.Errorf(&err, "failed to encode plantuml source")

	b := &bytes.Buffer{}

	zw, err := flate.NewWriter(b, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(zw, strings.NewReader(raw)); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	// Pad to whole 3 byte groups so the tail encodes as 4 characters like the rest.
	if rem := b.Len() % 3; rem != 0 {
		b.Write(make([]byte, 3-rem))
	}

	return encoding.EncodeToString(b.Bytes()), nil
}

// Decode decodes a compressed PlantUML string produced by Encode or by any other
// PlantUML encoder.
func Decode(encoded string) (_ string, err error) {
	defer xdefer.Errorf(&err, "failed to decode plantuml source")

	var bad rune
	if i := strings.IndexFunc(encoded, func(r rune) bool {
		bad = r
		return !strings.ContainsRune(alphabet, r)
	}); i != -1 {
		return "", fmt.Errorf("invalid character %q at offset %d", bad, i)
	}

	compressed, err := encoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	// Trailing pad bytes after the final deflate block are never read.
	zr := flate.NewReader(bytes.NewReader(compressed))
	var b bytes.Buffer
	if _, err := io.Copy(&b, zr); err != nil {
		return "", err
	}
	if err := zr.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}
