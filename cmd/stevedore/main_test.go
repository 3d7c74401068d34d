package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slonopotamus/stevedore/internal/config"
	"github.com/slonopotamus/stevedore/internal/distro"
	"github.com/slonopotamus/stevedore/internal/instance"
	"github.com/slonopotamus/stevedore/internal/logstore"
)

func TestErrorMessage(t *testing.T) {
	got := errorMessage(fmt.Errorf("acquire: %w", instance.ErrAlreadyRunning))
	if got != "Another instance of Stevedore is already running." {
		t.Errorf("already running = %q", got)
	}

	got = errorMessage(fmt.Errorf("%w: import stevedore: exit status 1", distro.ErrRegistration))
	if !strings.HasPrefix(got, "Stevedore failed to start: ") {
		t.Errorf("registration = %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "stevedore ") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRootRejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"bogus"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown argument")
	}
}

func TestDoctor_MissingTools(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.ImportArtifact = filepath.Join(dir, "stevedore.tar.gz")
	cfg.ProxyBin = filepath.Join(dir, "docker-wsl-proxy.exe")
	cfg.WSLBin = filepath.Join(dir, "no-wsl")
	cfg.DockerBin = filepath.Join(dir, "no-docker")

	var out bytes.Buffer
	runDoctor(context.Background(), &out, cfg)

	report := out.String()
	for _, want := range []string{"version:", "distribution:", "artifact:", "(missing)", "registered:", "docker context:", "last session:"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestLockAndOpenJournal_SecondInstance(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.LockName = fmt.Sprintf("stevedore-main-test-%d", time.Now().UnixNano())

	held, err := instance.Acquire(cfg.LockName)
	if err != nil {
		t.Fatal(err)
	}

	sup := newSupervisor(cfg, logstore.NewStore(""))
	db, err := lockAndOpenJournal(sup, cfg.JournalPath())
	if !errors.Is(err, instance.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	if db != nil {
		t.Error("journal opened without the lock")
	}
	if _, err := os.Stat(cfg.JournalPath()); !os.IsNotExist(err) {
		t.Errorf("journal file touched by second instance: %v", err)
	}

	held.Release()

	db, err = lockAndOpenJournal(sup, cfg.JournalPath())
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	if db == nil {
		t.Fatal("journal not opened once the lock is held")
	}
	db.Close()
	sup.Shutdown()
}
