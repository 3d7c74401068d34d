package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetup_WritesLogFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := Setup("debug", dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})

	For("test").Debug("hello from the log test")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "stevedore.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello from the log test") {
		t.Errorf("log file missing message: %q", data)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Errorf("log file missing component field: %q", data)
	}
}

func TestSetup_BadLevel(t *testing.T) {
	if _, err := Setup("loud", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
