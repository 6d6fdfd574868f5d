package cos

import "io"

// ReadUntilDoubleZero reads from r one byte at a time until it observes two
// consecutive 0x00 bytes, returning everything read before that terminator
// (the terminator itself is consumed but not included). Used to parse the
// headers-json-then-0x00-0x00 framing shared by Request, Stream-Request,
// Input-Request headers and the files payload archive header.
func ReadUntilDoubleZero(r io.Reader) ([]byte, error) {
	var out []byte
	prevZero := false
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if prevZero && one[0] == 0x00 {
				out = out[:len(out)-1]
				return out, nil
			}
			out = append(out, one[0])
			prevZero = one[0] == 0x00
		}
		if err != nil {
			return nil, err
		}
	}
}
