// Package logstore captures the output of the engine and proxy processes.
//
// Each role gets an in-memory tail for error reports and an NDJSON file under
// the logs dir that rotates once to <role>.ndjson.1.
package logstore

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	maxLines     = 1000
	maxLineBytes = 16 * 1024        // longer lines are cut
	maxFileBytes = 10 * 1024 * 1024 // 10MB per log file before rotation
)

// Streams a line can come from.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Entry is one captured output line.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Role      string    `json:"role"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
}

// Store holds one ProcessLog per role.
type Store struct {
	mu      sync.Mutex
	logs    map[string]*ProcessLog
	logsDir string
}

// NewStore creates a store writing under logsDir, creating it if needed.
// An empty logsDir keeps output in memory only.
func NewStore(logsDir string) *Store {
	if logsDir != "" {
		os.MkdirAll(logsDir, 0700)
	}
	return &Store{
		logs:    make(map[string]*ProcessLog),
		logsDir: logsDir,
	}
}

// For returns the log of role, opening it on first use.
func (s *Store) For(role string) *ProcessLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pl, ok := s.logs[role]; ok {
		return pl
	}
	var path string
	if s.logsDir != "" {
		path = filepath.Join(s.logsDir, role+".ndjson")
	}
	pl := newProcessLog(role, path)
	s.logs[role] = pl
	return pl
}

// Close flushes and closes every log.
func (s *Store) Close() error {
	s.mu.Lock()
	logs := s.logs
	s.logs = make(map[string]*ProcessLog)
	s.mu.Unlock()

	for _, pl := range logs {
		pl.Close()
	}
	return nil
}

// ProcessLog is a ring buffer of one role's output with file persistence.
type ProcessLog struct {
	mu   sync.Mutex
	role string

	entries []Entry
	head    int
	count   int

	partial map[string][]byte // unterminated tail per stream

	filePath  string
	file      *os.File
	fileBytes int64
}

func newProcessLog(role, filePath string) *ProcessLog {
	pl := &ProcessLog{
		role:     role,
		entries:  make([]Entry, maxLines),
		partial:  make(map[string][]byte),
		filePath: filePath,
	}
	if filePath == "" {
		return pl
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err == nil {
		pl.file = f
		if info, _ := f.Stat(); info != nil {
			pl.fileBytes = info.Size()
		}
	}
	return pl
}

// Stream returns a writer that splits its input into lines tagged with
// stream. Suitable as a process's Stdout or Stderr.
func (pl *ProcessLog) Stream(stream string) io.Writer {
	return streamWriter{pl: pl, stream: stream}
}

type streamWriter struct {
	pl     *ProcessLog
	stream string
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.pl.write(w.stream, p)
	return len(p), nil
}

func (pl *ProcessLog) write(stream string, p []byte) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	buf := append(pl.partial[stream], p...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		pl.appendLocked(stream, string(buf[:i]))
		buf = buf[i+1:]
	}
	if len(buf) > maxLineBytes {
		pl.appendLocked(stream, string(buf))
		buf = nil
	}
	pl.partial[stream] = append([]byte(nil), buf...)
}

// Append adds one line.
func (pl *ProcessLog) Append(stream, line string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.appendLocked(stream, line)
}

func (pl *ProcessLog) appendLocked(stream, line string) {
	line = strings.TrimRight(line, "\r")
	if len(line) > maxLineBytes {
		line = line[:maxLineBytes]
	}
	e := Entry{
		Timestamp: time.Now(),
		Role:      pl.role,
		Stream:    stream,
		Line:      line,
	}

	if pl.count >= maxLines {
		pl.head = (pl.head + 1) % maxLines
		pl.count--
	}
	pl.entries[(pl.head+pl.count)%maxLines] = e
	pl.count++

	if pl.file == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	data = append(data, '\n')
	n, err := pl.file.Write(data)
	if err == nil {
		pl.fileBytes += int64(n)
		if pl.fileBytes > maxFileBytes {
			pl.rotate()
		}
	}
}

func (pl *ProcessLog) rotate() {
	if pl.file != nil {
		pl.file.Close()
	}
	os.Rename(pl.filePath, pl.filePath+".1")
	f, err := os.OpenFile(pl.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err == nil {
		pl.file = f
		pl.fileBytes = 0
	} else {
		pl.file = nil
	}
}

// Tail returns the last n buffered entries, oldest first. n <= 0 returns
// all of them.
func (pl *ProcessLog) Tail(n int) []Entry {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	start := 0
	if n > 0 && pl.count > n {
		start = pl.count - n
	}
	out := make([]Entry, 0, pl.count-start)
	for i := start; i < pl.count; i++ {
		out = append(out, pl.entries[(pl.head+i)%maxLines])
	}
	return out
}

// TailText joins the last n lines for an error message.
func (pl *ProcessLog) TailText(n int) string {
	var lines []string
	for _, e := range pl.Tail(n) {
		lines = append(lines, e.Line)
	}
	return strings.Join(lines, "\n")
}

// Close flushes unterminated lines and closes the file.
func (pl *ProcessLog) Close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for stream, buf := range pl.partial {
		if len(buf) > 0 {
			pl.appendLocked(stream, string(buf))
		}
	}
	pl.partial = make(map[string][]byte)
	if pl.file != nil {
		pl.file.Close()
		pl.file = nil
	}
}
