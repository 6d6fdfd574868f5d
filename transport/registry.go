package transport

import (
	"bufio"
	"context"
	"sort"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/headers"
)

// HandlerFunc answers a Request or Stream-Request. Returning a non-nil
// error sends the error's mapped status/body instead.
type HandlerFunc func(ctx context.Context, r *Request) (*Response, error)

// HandlerItem is one versioned route entry.
type HandlerItem struct {
	ID         uint16
	Name       string
	Callback   HandlerFunc
	Version    *int // nil means "from the beginning"
	EndVersion *int // nil means "to the latest"
}

func (h *HandlerItem) covers(v int) bool {
	if h.Version != nil && v < *h.Version {
		return false
	}
	if h.EndVersion != nil && v > *h.EndVersion {
		return false
	}
	return true
}

// Api is the versioned handler registry, modeled after an xreg-style
// renewable-entry registry: a sorted-by-version slice per handler id,
// collapsing to a single scalar match on lookup.
type Api struct {
	byID map[uint16][]*HandlerItem
}

func NewApi() *Api {
	return &Api{byID: make(map[uint16][]*HandlerItem)}
}

// Register adds a handler, re-sorting its id's version ranges, auto-closing
// any now-superseded open-ended predecessor, and validating the result for
// the non-overlap/single-wildcard invariants.
func (a *Api) Register(h *HandlerItem) error {
	list := append(a.byID[h.ID], h)
	sort.Slice(list, func(i, j int) bool {
		return versionLow(list[i]) < versionLow(list[j])
	})
	closeOpenPredecessors(list)
	if err := validateRanges(list); err != nil {
		return err
	}
	a.byID[h.ID] = list
	return nil
}

// closeOpenPredecessors auto-closes an open-ended item's EndVersion to
// successor.version-1 once a later item with a defined start version is
// registered after it, so registering [1], then [3..4], then [6..] for the
// same handler id chains into {none,1,1,2,2,none,3,3} instead of tripping
// validateRanges' overlap check against the predecessor's unbounded end.
func closeOpenPredecessors(list []*HandlerItem) {
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.EndVersion == nil && cur.Version != nil {
			end := *cur.Version - 1
			prev.EndVersion = &end
		}
	}
}

func versionLow(h *HandlerItem) int {
	if h.Version == nil {
		return -1 << 31
	}
	return *h.Version
}

func versionHigh(h *HandlerItem) int {
	if h.EndVersion == nil {
		return 1<<31 - 1
	}
	return *h.EndVersion
}

// validateRanges enforces the version-range invariants: at most one
// wildcard (fully open on both ends) per handler id, and no two ranges
// may overlap.
func validateRanges(list []*HandlerItem) error {
	wildcards := 0
	for _, h := range list {
		if h.Version == nil && h.EndVersion == nil {
			wildcards++
		}
	}
	if wildcards > 1 {
		return cos.NewProtocolError("handler id %d: more than one wildcard version range", list[0].ID)
	}
	for i := 1; i < len(list); i++ {
		if versionLow(list[i]) <= versionHigh(list[i-1]) {
			return cos.NewProtocolError("handler id %d: overlapping version ranges", list[0].ID)
		}
	}
	return nil
}

// Resolve picks the handler covering apiVersion for handlerID, or reports
// ok=false if none matches unmatched handler id/version is a
// dispatch-time error, not a panic.
func (a *Api) Resolve(handlerID uint16, apiVersion int) (*HandlerItem, bool) {
	for _, h := range a.byID[handlerID] {
		if h.covers(apiVersion) {
			return h, true
		}
	}
	return nil, false
}

// Request is the decoded, in-flight message handed to a HandlerFunc.
type Request struct {
	Conn      *Conn
	MessageID uint16
	HandlerID uint16
	Headers   headers.Headers
	Body      any // decoded payload: []byte, a JSON value, or codec.Files
}

// Input requests more data from the peer under this request's message id,
// bypassing INPUT_LIMIT eviction pressure when bypass is true.
// It sends an Input-Request frame asking for dataType/h, then blocks for
// the peer's answer or ctx's cancellation.
func (r *Request) Input(ctx context.Context, dataType uint8, h headers.Headers, bypass bool) (*InputRequestFrame, error) {
	pi, err := r.Conn.AwaitInput(ctx, r.MessageID, bypass)
	if err != nil {
		return nil, err
	}
	out := &InputRequestFrame{MessageID: r.MessageID, DataType: dataType, Headers: h}
	if err := r.Conn.WriteLocked(func(bw *bufio.Writer) error {
		return WriteInputRequestFrame(bw, out, nil)
	}); err != nil {
		r.Conn.CancelInput(r.MessageID)
		return nil, err
	}
	select {
	case f, ok := <-pi.done:
		if !ok {
			return nil, cos.NewStreamClosedError("input %d canceled", r.MessageID)
		}
		return f, nil
	case <-ctx.Done():
		r.Conn.CancelInput(r.MessageID)
		return nil, ctx.Err()
	}
}

// Response is what a HandlerFunc returns: either a single Artifact-backed
// body or a channel of chunks for a streamed reply.
type Response struct {
	Headers headers.Headers
	Body    any
	Stream  <-chan []byte // non-nil means "send as Stream-Request frame"
}
