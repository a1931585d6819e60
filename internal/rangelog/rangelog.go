// Package rangelog is the fusion core's package-level diagnostic sink. It
// defaults to log.Printf but can be redirected (or silenced) by a host
// application, mirroring the pack's own answer to "ambient logging inside a
// library with no opinion about its host's log destination."
package rangelog

import "log"

// Logf is the package-level diagnostic logger. Replace it with SetLogger to
// redirect or mute diagnostics; tests commonly set it to a no-op.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf reports a non-fatal, input-invalid condition (spec.md §7): the
// affected source contributes zero weight this frame and the event is
// logged, never raised.
func Debugf(format string, v ...interface{}) {
	Logf("debug: "+format, v...)
}
