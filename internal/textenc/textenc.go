// Package textenc handles the Shift-JIS and full-width text found in
// Japanese bank files.
package textenc

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

const (
	EncodingShiftJIS = "Shift_JIS"
	EncodingUTF8BOM  = "UTF-8-BOM"
	EncodingUTF8     = "UTF-8"
)

var ErrUnknownEncoding = errors.New("unknown_encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectDecode converts raw file bytes to UTF-8, trying Shift-JIS first,
// then UTF-8 with a BOM, then plain UTF-8. Input that is already valid
// multi-byte UTF-8 is never read as Shift-JIS.
func DetectDecode(raw []byte) (string, string, error) {
	if text, ok := decodeShiftJIS(raw); ok {
		return text, EncodingShiftJIS, nil
	}
	if bytes.HasPrefix(raw, utf8BOM) {
		body := raw[len(utf8BOM):]
		if utf8.Valid(body) {
			return string(body), EncodingUTF8BOM, nil
		}
	}
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8, nil
	}
	return "", "", ErrUnknownEncoding
}

func decodeShiftJIS(raw []byte) (string, bool) {
	if bytes.HasPrefix(raw, utf8BOM) || (utf8.Valid(raw) && !isASCII(raw)) {
		return "", false
	}
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func isASCII(raw []byte) bool {
	for _, b := range raw {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// EncodeShiftJIS converts UTF-8 text for bank-bound files.
func EncodeShiftJIS(s string) ([]byte, error) {
	return japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
}

// Fold maps full-width digits, letters and the ideographic space to ASCII
// and half-width katakana to full-width.
func Fold(s string) string {
	return norm.NFC.String(width.Fold.String(s))
}

// NormalizeSpaces folds width and collapses runs of whitespace to one space.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}

// HalfWidthKana converts text to the half-width katakana and ASCII used in
// zengin records. Voiced marks become separate half-width marks.
func HalfWidthKana(s string) string {
	decomposed := norm.NFD.String(s)
	narrow := width.Narrow.String(decomposed)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u3099':
			return '\uff9e'
		case '\u309a':
			return '\uff9f'
		case '\u3000':
			return ' '
		}
		return r
	}, narrow)
}
