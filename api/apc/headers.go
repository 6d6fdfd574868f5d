package apc

// Reserved Headers keys.
const (
	HdrStatus = "Status"
	HdrOffset = "Offset"
)

const DefaultStatus = 200

// Headers-separator: a Request/Stream-Request/Input-Request's JSON headers
// blob is terminated by two NUL bytes before the payload begins.
var HeaderSeparator = [2]byte{0x00, 0x00}
