package colstore

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

func Map[In any, Out any](list []In, mapFn func(val In) Out) []Out {
	var newSlice = make([]Out, len(list))
	for i, val := range list {
		newSlice[i] = mapFn(val)
	}

	return newSlice
}

func Filter[T any](slice []T, filterFunc func(val T) bool) []T {
	var newSlice []T
	for i, val := range slice {
		if filterFunc(val) {
			newSlice = append(newSlice, slice[i])
		}
	}

	return newSlice
}

// ParseBytes reads a row key or value written as text. A 0x prefix marks
// hex.
func ParseBytes(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid hex %q", s)
		}
		return b, nil
	}
	return []byte(s), nil
}

// FormatBytes prints b as text when it is printable UTF-8, else as 0x hex.
func FormatBytes(b []byte) string {
	if utf8.Valid(b) && strings.IndexFunc(string(b), func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}

// ParseColumn splits FAMILY:QUALIFIER.
func ParseColumn(s string) (family, qualifier string, err error) {
	family, qualifier, ok := strings.Cut(s, ":")
	if !ok || family == "" || qualifier == "" {
		return "", "", errors.Errorf("column %q must be FAMILY:QUALIFIER", s)
	}
	return family, qualifier, nil
}
