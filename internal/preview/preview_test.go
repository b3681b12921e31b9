package preview

import (
	"strings"
	"testing"

	"github.com/shrijayan/itwillsync/internal/registry"
)

type fakeAttn struct {
	updated chan registry.Status
}

func (f *fakeAttn) UpdateStatus(id string, status registry.Status) (registry.SessionInfo, bool) {
	if f.updated != nil {
		f.updated <- status
	}
	return registry.SessionInfo{ID: id, Status: status}, true
}

func (f *fakeAttn) GetByID(id string) (registry.SessionInfo, bool) {
	return registry.SessionInfo{ID: id}, true
}

type fakeSink struct {
	emitted [][]string
}

func (f *fakeSink) EmitPreview(sessionID string, lines []string) {
	f.emitted = append(f.emitted, lines)
}

func newTestCollector() *Collector {
	c := New(nil, &fakeAttn{}, nil, nil)
	c.SetSink(&fakeSink{})
	return c
}

func TestAbsorbSplitsCompleteLinesAndKeepsCarry(t *testing.T) {
	sc := newSessionCollector(registry.SessionInfo{ID: "x"}, &fakeAttn{}, newTestCollector(), nil)
	sc.absorb("first line\nsecond line\npartial")

	lines := sc.snapshotLines()
	if len(lines) != 2 || lines[0] != "first line" || lines[1] != "second line" {
		t.Errorf("lines = %v, want [first line, second line]", lines)
	}
	if sc.carry != "partial" {
		t.Errorf("carry = %q, want %q", sc.carry, "partial")
	}
}

func TestAbsorbDropsEmptyLines(t *testing.T) {
	sc := newSessionCollector(registry.SessionInfo{ID: "x"}, &fakeAttn{}, newTestCollector(), nil)
	sc.absorb("one\n\n\ntwo\n")

	lines := sc.snapshotLines()
	if len(lines) != 2 {
		t.Errorf("lines = %v, want 2 non-empty lines", lines)
	}
}

func TestAbsorbTruncatesLongLines(t *testing.T) {
	sc := newSessionCollector(registry.SessionInfo{ID: "x"}, &fakeAttn{}, newTestCollector(), nil)
	long := strings.Repeat("x", 100)
	sc.absorb(long + "\n")

	lines := sc.snapshotLines()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "...") || len(lines[0]) != maxLineLength+3 {
		t.Errorf("line = %q, want truncated to %d chars plus ellipsis", lines[0], maxLineLength)
	}
}

func TestAbsorbCapsAtFiveLines(t *testing.T) {
	sc := newSessionCollector(registry.SessionInfo{ID: "x"}, &fakeAttn{}, newTestCollector(), nil)
	for i := 0; i < 10; i++ {
		sc.absorb("line\n")
	}
	if got := len(sc.snapshotLines()); got != maxPreviewLines {
		t.Errorf("len(lines) = %d, want %d", got, maxPreviewLines)
	}
}

func TestPowHelper(t *testing.T) {
	if got := pow(1.5, 0); got != 1.0 {
		t.Errorf("pow(1.5, 0) = %v, want 1.0", got)
	}
	if got := pow(2, 3); got != 8.0 {
		t.Errorf("pow(2, 3) = %v, want 8.0", got)
	}
}
