package sha256time

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// SaveReplayWindow persists the handshaker's recently-seen digest set to a
// gzip-compressed snapshot, so a restarted server doesn't momentarily widen
// its replay window to empty. This is an operational nicety, not part of
// the protocol: losing the snapshot only widens the replay window back to
// empty for one bucket's worth of time, it never breaks correctness.
func (h *Handshaker) SaveReplayWindow(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	defer gw.Close()
	bw := bufio.NewWriter(gw)
	defer bw.Flush()

	keys := h.seen.Encode()
	_, err = bw.Write(keys)
	return err
}

// LoadReplayWindow restores a snapshot written by SaveReplayWindow,
// replacing the handshaker's in-memory filter. Returns cleanly (no-op) if
// path doesn't exist yet.
func (h *Handshaker) LoadReplayWindow(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()
	data, err := io.ReadAll(gr)
	if err != nil {
		return err
	}
	restored, err := cuckoo.Decode(data)
	if err != nil {
		return err
	}
	h.seen = restored
	return nil
}
