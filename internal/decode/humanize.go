// ABOUTME: Small conversions for payload bytes and fixed-point radio values
// ABOUTME: Printability heuristic, hex previews and degree conversion

package decode

import (
	"encoding/hex"
	"fmt"
	"math"
	"unicode/utf8"
)

// textThreshold is the minimum printable share for IsMostlyText.
const textThreshold = 0.8

// IsMostlyText reports whether at least 80% of the runes in s are printable
// ASCII, tab/LF/CR, or valid characters at or above U+00A0. Invalid UTF-8
// bytes count as unprintable.
func IsMostlyText(s string) bool {
	if s == "" {
		return false
	}
	printable, total := 0, 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		total++
		switch {
		case r == utf8.RuneError && size <= 1:
		case r == '\t' || r == '\n' || r == '\r':
			printable++
		case r >= 0x20 && r < 0x7f:
			printable++
		case r >= 0xa0:
			printable++
		}
	}
	return float64(printable)/float64(total) >= textThreshold
}

// HexPreview describes b as its length plus the hex of its first n bytes,
// with an ellipsis when truncated.
func HexPreview(b []byte, n int) string {
	if b == nil {
		return "none"
	}
	head := b
	suffix := ""
	if len(b) > n {
		head = b[:n]
		suffix = "…"
	}
	return fmt.Sprintf("len=%d hex:%s%s", len(b), hex.EncodeToString(head), suffix)
}

// ToDegrees converts a 1e-7 fixed-point coordinate to decimal degrees rounded
// to 7 places.
func ToDegrees(i int64) float64 {
	return math.Round(float64(i)*1e-7*1e7) / 1e7
}
