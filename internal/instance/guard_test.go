package instance

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("stevedore-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestAcquire_SecondFails(t *testing.T) {
	name := uniqueName(t)

	g, err := Acquire(name)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	_, err = Acquire(name)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Acquire err = %v, want ErrAlreadyRunning", err)
	}
}

func TestAcquire_ReleaseAllowsReacquire(t *testing.T) {
	name := uniqueName(t)

	g, err := Acquire(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Release(); err != nil {
		t.Fatal(err)
	}
	// Double release is a no-op.
	if err := g.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	g2, err := Acquire(name)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	g2.Release()
}

func TestAcquire_ConcurrentExactlyOneWins(t *testing.T) {
	const n = 16
	name := uniqueName(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		guards  []*Guard
		already int
		other   []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			g, err := Acquire(name)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				guards = append(guards, g)
			case errors.Is(err, ErrAlreadyRunning):
				already++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	for _, g := range guards {
		defer g.Release()
	}
	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if len(guards) != 1 {
		t.Errorf("winners = %d, want 1", len(guards))
	}
	if already != n-1 {
		t.Errorf("AlreadyRunning = %d, want %d", already, n-1)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"stevedore":        "stevedore",
		"  my app\\x  ":    "my_app_x",
		"///":              "stevedore",
		"dev.stevedore-01": "dev.stevedore-01",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
