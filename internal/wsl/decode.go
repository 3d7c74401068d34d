package wsl

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// decodeOutput turns wsl.exe output into a string. wsl.exe writes its own
// messages as UTF-16LE while commands run with --exec write whatever the
// guest program emits, usually UTF-8.
func decodeOutput(b []byte) string {
	if looksUTF16LE(b) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if s, err := dec.Bytes(b); err == nil {
			b = s
		}
	}
	s := strings.ReplaceAll(string(b), "\x00", "")
	return strings.ReplaceAll(s, "\r", "")
}

// looksUTF16LE guesses from a BOM or from NULs in the high byte of the
// leading ASCII code units.
func looksUTF16LE(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0] == 0xFF && b[1] == 0xFE {
		return true
	}
	n := len(b) / 2
	if n > 16 {
		n = 16
	}
	zeros := 0
	for i := 0; i < n; i++ {
		if b[2*i+1] == 0 && b[2*i] != 0 {
			zeros++
		}
	}
	return zeros*2 > n
}
