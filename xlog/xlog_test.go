package xlog

import "testing"

func TestWarnAndInfoNilLoggerDoNotPanic(t *testing.T) {
	Warn(nil, "reason")
	Info(nil, "message")
}

func TestNopDoesNotPanic(t *testing.T) {
	logger := Nop()
	Warn(logger, "reason", "key", "value")
	Info(logger, "message")
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger := New("test-subsys")
	if logger == nil {
		t.Fatal("New returned a nil logger")
	}
	if err := logger.Log("level", "info", "message", "hello"); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}
}
