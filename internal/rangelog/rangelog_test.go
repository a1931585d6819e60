package rangelog

import "testing"

func TestSetLoggerRedirectsDebugf(t *testing.T) {
	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	defer SetLogger(nil)

	Debugf("tile %s missing", "N37W123")
	if got != "debug: tile %s missing" {
		t.Errorf("Logf format = %q, want %q", got, "debug: tile %s missing")
	}
}

func TestSetLoggerNilInstallsNoOp(t *testing.T) {
	SetLogger(nil)
	defer SetLogger(nil)
	Debugf("should not panic")
}
