package nlog

import "time"

// Infof, Warningf, Errorf and friends mirror the subset of glog-style API
// that this module standardizes on: severity-prefixed, timestamped,
// file:line-tagged lines, optionally duplicated to a rotating on-disk file.

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// SetLogDirRole configures on-disk logging; an empty dir keeps logging
// stderr-only (the default).
func SetLogDirRole(dir, r string) { logDir, role = dir, r; toStderr = dir == "" }
func SetTitle(s string)           { title = s }
func SetAlsoToStderr(v bool)      { alsoToStderr = v }

func Flush() {
	for _, nl := range nlogs {
		nl.mw.Lock()
		if nl.w != nil {
			nl.w.Flush()
		}
		nl.mw.Unlock()
	}
}

func Since() time.Duration {
	now := time.Now().UnixNano()
	a, b := nlogs[sevInfo].since(now), nlogs[sevErr].since(now)
	if a > b {
		return a
	}
	return b
}
