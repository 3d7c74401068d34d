package logstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRingBufferEvictionByCount(t *testing.T) {
	s := NewStore(t.TempDir())
	pl := s.For("engine")

	for i := 0; i < maxLines+100; i++ {
		pl.Append(StreamStdout, fmt.Sprintf("line %d", i))
	}

	entries := pl.Tail(0)
	if len(entries) != maxLines {
		t.Fatalf("expected %d entries, got %d", maxLines, len(entries))
	}
	if entries[0].Line != "line 100" {
		t.Errorf("oldest = %q, want %q", entries[0].Line, "line 100")
	}
}

func TestStreamSplitsLines(t *testing.T) {
	s := NewStore("")
	pl := s.For("proxy")
	w := pl.Stream(StreamStderr)

	fmt.Fprint(w, "listening on ")
	fmt.Fprint(w, "npipe\r\nsecond line\nthird")

	got := pl.Tail(0)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Line != "listening on npipe" {
		t.Errorf("line 0 = %q", got[0].Line)
	}
	if got[1].Stream != StreamStderr || got[1].Role != "proxy" {
		t.Errorf("entry = %+v", got[1])
	}

	pl.Close()
	got = pl.Tail(1)
	if len(got) != 1 || got[0].Line != "third" {
		t.Errorf("after close tail = %+v, want the flushed partial line", got)
	}
}

func TestLongLineIsCut(t *testing.T) {
	s := NewStore("")
	pl := s.For("engine")

	pl.Stream(StreamStdout).Write([]byte(strings.Repeat("x", maxLineBytes+10)))

	got := pl.Tail(0)
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if len(got[0].Line) != maxLineBytes {
		t.Errorf("line length = %d, want %d", len(got[0].Line), maxLineBytes)
	}
}

func TestFilePersistence(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	pl := s.For("engine")

	pl.Append(StreamStdout, "hello")
	pl.Append(StreamStderr, "world")
	s.Close()

	f, err := os.Open(filepath.Join(dir, "engine.ndjson"))
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var lines []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 || lines[0].Line != "hello" || lines[1].Stream != StreamStderr {
		t.Errorf("file entries = %+v", lines)
	}
}

func TestFileRotation(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	pl := s.For("engine")

	big := strings.Repeat("a", maxLineBytes)
	for i := 0; i < maxFileBytes/maxLineBytes+50; i++ {
		pl.Append(StreamStdout, big)
	}

	if _, err := os.Stat(filepath.Join(dir, "engine.ndjson.1")); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "engine.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > maxFileBytes {
		t.Errorf("current file %d bytes, want <= %d", info.Size(), maxFileBytes)
	}
}

func TestForReturnsSameLog(t *testing.T) {
	s := NewStore("")
	if s.For("engine") != s.For("engine") {
		t.Error("For returned different logs for the same role")
	}
	if s.For("engine") == s.For("proxy") {
		t.Error("For returned the same log for different roles")
	}
}

func TestTailText(t *testing.T) {
	s := NewStore("")
	pl := s.For("proxy")
	for _, l := range []string{"a", "b", "c"} {
		pl.Append(StreamStdout, l)
	}
	if got := pl.TailText(2); got != "b\nc" {
		t.Errorf("TailText = %q, want %q", got, "b\nc")
	}
}
