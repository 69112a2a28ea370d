package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
)

func TestSequenceNumbersMonotonic(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, logiface.LevelDebug)

	l.Info().Str("k", "v").Log("first")
	l.Warning().Log("second")
	l.Err().Log("third")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d: %q", len(lines), buf.String())
	}
	for i, want := range []string{`"seq":"1"`, `"seq":"2"`, `"seq":"3"`} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("record %d missing %s: %s", i, want, lines[i])
		}
	}
	if l.Seq() != 3 {
		t.Fatalf("Seq() = %d, want 3", l.Seq())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, logiface.LevelWarning)

	l.Debug().Log("dropped")
	l.Info().Log("dropped too")
	l.Warning().Log("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Count(out, "\n")+1 != 1 || !strings.Contains(out, "kept") {
		t.Fatalf("expected only the warning record, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logiface.Level{
		"trace":    logiface.LevelTrace,
		"debug":    logiface.LevelDebug,
		"info":     logiface.LevelInformational,
		"warning":  logiface.LevelWarning,
		"error":    logiface.LevelError,
		"fatal":    logiface.LevelEmergency,
		"misspelt": logiface.LevelInformational,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
