package codec

import (
	"bytes"
	"io"
	"os"

	jsoniterFiles "github.com/json-iterator/go"

	"github.com/cifrazia/cats-go/api/apc"
	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/headers"
	"github.com/cifrazia/cats-go/membuf"
)

// File is one member of a Files payload: a self-describing archive entry
//. On encode, Reader supplies the content and Size must be known
// up front (CATS frames are length-prefixed, not chunked-within-a-file).
// On decode, Data holds small members in memory and Path points at a spill
// file for members too large to buffer.
type File struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type,omitempty"`

	Reader io.Reader `json:"-"`
	Data   []byte    `json:"-"`
	Path   string    `json:"-"`
}

// Files is the payload value type the files codec claims; handlers return
// (or frames decode to) a Files slice, never a bare []*File.
type Files []*File

func encodeFiles(value any) (Artifact, uint8, error) {
	files, ok := value.(Files)
	if !ok {
		return Artifact{}, 0, ErrUnsupportedType
	}

	hdr := make([]map[string]any, 0, len(files))
	var total int64
	for _, f := range files {
		hdr = append(hdr, map[string]any{"key": f.Key, "name": f.Name, "size": f.Size, "type": f.Type})
		total += f.Size
	}
	hdrJSON, err := jsoniterFiles.ConfigCompatibleWithStandardLibrary.Marshal(hdr)
	if err != nil {
		return Artifact{}, 0, cos.NewMalformedDataError("files header encode: %v", err)
	}
	hdrJSON = cos.EscapeSlashes(hdrJSON)

	if total+int64(len(hdrJSON))+2 <= maxPlain() {
		var buf bytes.Buffer
		buf.Write(hdrJSON)
		buf.Write(apc.HeaderSeparator[:])
		for _, f := range files {
			if _, err := io.Copy(&buf, io.LimitReader(f.Reader, f.Size)); err != nil {
				return Artifact{}, 0, err
			}
		}
		return BufferArtifact(buf.Bytes()), apc.DataFiles, nil
	}

	sf, err := membuf.NewSpillFile("cats-files-*")
	if err != nil {
		return Artifact{}, 0, err
	}
	w := sf.File()
	if _, err := w.Write(hdrJSON); err != nil {
		sf.Close()
		return Artifact{}, 0, err
	}
	if _, err := w.Write(apc.HeaderSeparator[:]); err != nil {
		sf.Close()
		return Artifact{}, 0, err
	}
	for _, f := range files {
		if _, err := io.Copy(w, io.LimitReader(f.Reader, f.Size)); err != nil {
			sf.Close()
			return Artifact{}, 0, err
		}
	}
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		sf.Close()
		return Artifact{}, 0, err
	}
	return SpillArtifact(sf), apc.DataFiles, nil
}

// decodeFiles always deletes the backing spill file on any failure path
//, via Artifact.Close in the caller and explicit cleanup below
// for file members created mid-decode.
func decodeFiles(a Artifact, _ headers.Headers) (any, error) {
	var r io.Reader
	var closeSrc func() error
	if a.Kind == KindBuffer {
		r = bytes.NewReader(a.Buf)
		closeSrc = func() error { return nil }
	} else {
		r = a.Spill.File()
		closeSrc = a.Spill.Close
	}

	hdr, err := readFilesHeader(r)
	if err != nil {
		closeSrc()
		return nil, err
	}

	out := make(Files, 0, len(hdr))
	for _, h := range hdr {
		f := &File{Key: h.Key, Name: h.Name, Size: h.Size, Type: h.Type}
		if h.Size <= config.MaxPlainDataSize {
			buf := make([]byte, h.Size)
			if _, err := io.ReadFull(r, buf); err != nil {
				closeSrc()
				cleanupFiles(out)
				return nil, cos.NewProtocolError("files member %q truncated: %v", f.Name, err)
			}
			f.Data = buf
		} else {
			sf, err := membuf.NewSpillFile("cats-file-member-*")
			if err != nil {
				closeSrc()
				cleanupFiles(out)
				return nil, err
			}
			if _, err := io.CopyN(sf.File(), r, h.Size); err != nil {
				sf.Close()
				closeSrc()
				cleanupFiles(out)
				return nil, cos.NewProtocolError("files member %q truncated: %v", f.Name, err)
			}
			sf.File().Seek(0, io.SeekStart)
			f.Path = sf.Detach()
		}
		out = append(out, f)
	}
	if err := closeSrc(); err != nil {
		cleanupFiles(out)
		return nil, err
	}
	return out, nil
}

type fileHeaderEntry struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type,omitempty"`
}

// readFilesHeader reads up to the 0x00 0x00 separator and parses the
// preceding bytes as the files archive's JSON header.
func readFilesHeader(r io.Reader) ([]fileHeaderEntry, error) {
	raw, err := cos.ReadUntilDoubleZero(r)
	if err != nil {
		return nil, cos.NewProtocolError("files header: unterminated (%v)", err)
	}
	var hdr []fileHeaderEntry
	if err := jsoniterFiles.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &hdr); err != nil {
		return nil, cos.NewMalformedDataError("files header decode: %v", err)
	}
	return hdr, nil
}

func cleanupFiles(files Files) {
	for _, f := range files {
		if f.Path != "" {
			_ = os.Remove(f.Path)
		}
	}
}
