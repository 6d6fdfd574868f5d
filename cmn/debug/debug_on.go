//go:build debug

package debug

import (
	"fmt"
	"sync"

	"github.com/cifrazia/cats-go/cmn/nlog"
)

func ON() bool { return true }

func Infof(f string, a ...any) { nlog.InfoDepth(1, fmt.Sprintf(f, a...)) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, a...)...))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}

func Assertf(cond bool, f string, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(f, a...))
	}
}

// AssertMutexLocked is best-effort: sync.Mutex exposes no public "is locked"
// query, so this only documents intent at call sites compiled with -tags debug.
func AssertMutexLocked(_ *sync.Mutex)      {}
func AssertRWMutexLocked(_ *sync.RWMutex)  {}
func AssertRWMutexRLocked(_ *sync.RWMutex) {}
