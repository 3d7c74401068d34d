package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is re-executed as a child by the
// tests below and sleeps until killed.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("STEVEDORE_WANT_HELPER_PROCESS") != "1" {
		return
	}
	time.Sleep(10 * time.Minute)
	os.Exit(0)
}

func helperSpec(role Role) Spec {
	return Spec{
		Role: role,
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess"},
		Env:  append(os.Environ(), "STEVEDORE_WANT_HELPER_PROCESS=1"),
	}
}

func TestSpawnAndRelease(t *testing.T) {
	p, err := Spawn(helperSpec(RoleEngine))
	if err != nil {
		t.Fatal(err)
	}
	pid := p.Pid()

	if p.Role() != RoleEngine {
		t.Errorf("Role = %q, want %q", p.Role(), RoleEngine)
	}
	if !p.Alive() {
		t.Fatal("process exited right after spawn")
	}
	if !Alive(pid) {
		t.Fatalf("Alive(%d) = false for a running child", pid)
	}

	p.Release()

	if p.Alive() {
		t.Error("process still alive after Release")
	}
	if Alive(pid) {
		t.Errorf("Alive(%d) = true after Release", pid)
	}

	// Second release is a no-op.
	p.Release()
}

func TestRelease_Nil(t *testing.T) {
	var p *Process
	p.Release()
}

func TestSpawn_MissingBinary(t *testing.T) {
	_, err := Spawn(Spec{
		Role: RoleProxy,
		Path: filepath.Join(t.TempDir(), "no-such-proxy"),
	})
	if err == nil {
		t.Fatal("expected spawn error for missing binary")
	}
}

func TestSet_ReleaseAll(t *testing.T) {
	var s Set
	for _, role := range []Role{RoleEngine, RoleProxy} {
		p, err := Spawn(helperSpec(role))
		if err != nil {
			s.ReleaseAll()
			t.Fatal(err)
		}
		s.Add(p)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	procs := s.Processes()

	s.ReleaseAll()

	if s.Len() != 0 {
		t.Errorf("Len after ReleaseAll = %d, want 0", s.Len())
	}
	for _, p := range procs {
		if Alive(p.Pid()) {
			t.Errorf("%s (pid %d) still alive after ReleaseAll", p.Role(), p.Pid())
		}
	}
}

func TestReap(t *testing.T) {
	// Spawn without taking the usual ownership path, as if a previous
	// supervisor had crashed and left the child behind.
	p, err := Spawn(helperSpec(RoleProxy))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	Reap(p.Pid())

	select {
	case <-p.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("orphan not reaped")
	}

	// Reaping a dead or invalid pid is a no-op.
	Reap(p.Pid())
	Reap(0)
}

func TestCommand(t *testing.T) {
	cmd := Command(context.Background(), os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run hidden command: %v", err)
	}
}
