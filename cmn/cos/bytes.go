package cos

import (
	"bytes"
	"strings"
	"unsafe"
)

// UnsafeB and UnsafeS perform zero-copy []byte<->string conversions, used
// on hot paths (hashing, header key lookups) where the source is known not
// to be mutated afterward. Mirrors the helper pair present throughout this
// module's lineage.
func UnsafeB(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// EscapeSlashes rewrites "</" as "<\/" in a JSON-encoded buffer, so that
// embedding it verbatim inside an HTML/JS context can never be terminated
// early by a literal "</script>" or similar.
func EscapeSlashes(b []byte) []byte {
	if !bytes.Contains(b, []byte("</")) {
		return b
	}
	return []byte(strings.ReplaceAll(string(b), "</", `<\/`))
}

// StringInSlice reports whether s is present in list.
func StringInSlice(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
