// Package textenc normalizes text inputs to UTF-8.
package textenc

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ToUTF8 detects the encoding of content and converts it to UTF-8.
// A byte-order mark wins; otherwise valid UTF-8 passes through untouched and
// anything else is sniffed, with contentType (may be empty) as a hint.
// The returned name is the IANA name of the source encoding.
func ToUTF8(content []byte, contentType string) ([]byte, string, error) {
	if len(content) == 0 {
		return content, "utf-8", nil
	}

	if hasBOM(content) {
		decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), decoder))
		if err != nil {
			return content, "unknown", fmt.Errorf("decode BOM input: %w", err)
		}
		return out, bomName(content), nil
	}

	if utf8.Valid(content) {
		return content, "utf-8", nil
	}

	enc, name, _ := charset.DetermineEncoding(content, contentType)
	if enc == nil {
		return content, "utf-8", nil
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if err != nil {
		return content, name, fmt.Errorf("failed to convert from '%s': %w", name, err)
	}
	return out, name, nil
}

func hasBOM(b []byte) bool {
	return bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(b, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(b, []byte{0xFF, 0xFE})
}

func bomName(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		return "utf-16be"
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		return "utf-16le"
	default:
		return "utf-8"
	}
}
