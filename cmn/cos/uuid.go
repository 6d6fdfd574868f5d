package cos

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating connection/identity ids, modeled on the
// shortid.DEFAULT_ABC used elsewhere in this lineage.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenConnID = 9

var (
	sid *shortid.Shortid
	rtie atomic.Uint32
)

func init() {
	seed, _ := rand.Int(rand.Reader, big.NewInt(1<<31))
	sid = shortid.MustNew(4, uuidABC, seed.Uint64())
}

// GenConnID generates a short, mostly-random id for a Connection or a
// server-assigned channel member — not security sensitive, just unique
// enough for logs and debugging.
func GenConnID() string {
	id := sid.MustGenerate()
	if len(id) == 0 {
		return id
	}
	c := id[0]
	if !isAlpha(c) {
		tie := rtie.Add(1)
		id = string(rune('A'+tie%26)) + id
	}
	return id
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// HashStr returns a stable 64-bit digest for strings used as sharding keys
// (e.g. channel names), via xxhash.
func HashStr(s string) uint64 {
	return xxhash.Checksum64S(UnsafeB(s), 0)
}

func HashStrToBase36(s string) string {
	return strconv.FormatUint(HashStr(s), 36)
}
