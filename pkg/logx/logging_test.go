package logx

import (
	"testing"
)

func TestNewConsoleLevelGating(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level   string
		traceOn bool
		debugOn bool
		infoOn  bool
	}{
		{level: "trace", traceOn: true, debugOn: true, infoOn: true},
		{level: "debug", traceOn: false, debugOn: true, infoOn: true},
		{level: "info", traceOn: false, debugOn: false, infoOn: true},
		{level: "bogus", traceOn: false, debugOn: false, infoOn: true}, // falls back to info
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
			l := NewConsole(tt.level)
			if l.IsZero() {
				t.Fatal("console logger should not be zero")
			}
			if got := l.Enabled(LevelTrace); got != tt.traceOn {
				t.Fatalf("Enabled(trace) = %v, want %v", got, tt.traceOn)
			}
			if got := l.Enabled(LevelDebug); got != tt.debugOn {
				t.Fatalf("Enabled(debug) = %v, want %v", got, tt.debugOn)
			}
			if got := l.Enabled(LevelInfo); got != tt.infoOn {
				t.Fatalf("Enabled(info) = %v, want %v", got, tt.infoOn)
			}
		})
	}
}

func TestZeroValueLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	// Must not panic on any level.
	l.Trace("t")
	l.Debug("d")
	l.Info("i", String("k", "v"))
	l.Warn("w")
	l.Error("e", Err(nil))

	d := l.With(Int("n", 1))
	if d.IsZero() {
		t.Fatal("derived logger carries fields")
	}
	d.Info("still fine")
}

func TestNopNeverEnables(t *testing.T) {
	t.Parallel()
	l := Nop()
	if l.Enabled(LevelError) {
		t.Fatal("nop logger should not enable any level")
	}
	l.Error("swallowed")
}
