// Package apc holds the wire-level constants shared by every other
// package: frame discriminators, payload data types, compression ids, and
// reserved header keys.
package apc

// Compression ids pinned, since the source left the exact set
// unspecified. `CompNone` is always supported; `CompLZ4` is the module's
// one general-purpose compressor, chosen because this lineage already
// depends on github.com/pierrec/lz4/v3 for exactly this purpose.
//
// NOTE: LZ4 block/frame format: http://fastcompression.blogspot.com/2013/04/lz4-streaming-format-final.html
const (
	CompNone uint8 = 0x00
	CompLZ4 uint8 = 0x01
)

var SupportedCompression = []uint8{CompNone, CompLZ4}

func IsValidCompression(c uint8) bool {
	for _, v := range SupportedCompression {
		if v == c {
			return true
		}
	}
	return false
}
