package wsl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/slonopotamus/stevedore/internal/process"
	"github.com/slonopotamus/stevedore/internal/process/fake"
	"golang.org/x/text/encoding/unicode"
)

func utf16le(t *testing.T, s string) []byte {
	t.Helper()
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestClient(r *fake.Runner) *Client {
	c := New("wsl", r)
	c.native = func(string) (bool, error) { return false, errNoNative }
	return c
}

func TestIsRegistered_ListFallback(t *testing.T) {
	r := &fake.Runner{Handler: func(_ string, args []string) ([]byte, error) {
		return utf16le(t, "Ubuntu\r\nstevedore\r\n"), nil
	}}
	c := newTestClient(r)

	ok, err := c.IsRegistered(context.Background(), "stevedore")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("IsRegistered = false, want true")
	}

	ok, err = c.IsRegistered(context.Background(), "debian")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("IsRegistered(debian) = true, want false")
	}

	if n := len(r.Matching("--list", "--quiet")); n != 2 {
		t.Errorf("list calls = %d, want 2", n)
	}
}

func TestIsRegistered_NoDistributions(t *testing.T) {
	r := &fake.Runner{Handler: func(string, []string) ([]byte, error) {
		return nil, &process.CommandError{
			Name:   "wsl",
			Code:   -1,
			Stdout: utf16le(t, "Windows Subsystem for Linux has no installed distributions.\r\nError code: Wsl/WSL_E_DEFAULT_DISTRO_NOT_FOUND\r\n"),
			Err:    errors.New("exit status 0xffffffff"),
		}
	}}
	ok, err := newTestClient(r).IsRegistered(context.Background(), "stevedore")
	if err != nil {
		t.Fatalf("IsRegistered err = %v, want nil", err)
	}
	if ok {
		t.Error("IsRegistered = true on empty host")
	}
}

func TestIsRegistered_ListFailure(t *testing.T) {
	r := &fake.Runner{Handler: func(string, []string) ([]byte, error) {
		return nil, &process.CommandError{
			Name:   "wsl",
			Code:   1,
			Stdout: utf16le(t, "The Windows Subsystem for Linux service is not running.\r\nError code: Wsl/Service/E_UNEXPECTED\r\n"),
			Err:    errors.New("exit status 1"),
		}
	}}
	ok, err := newTestClient(r).IsRegistered(context.Background(), "stevedore")
	if err == nil {
		t.Fatalf("IsRegistered = %v, nil; want the wsl error", ok)
	}
	if !strings.Contains(err.Error(), "E_UNEXPECTED") {
		t.Errorf("err = %q, want the wsl message", err.Error())
	}
}

func TestIsRegistered_Native(t *testing.T) {
	r := &fake.Runner{}
	c := New("wsl", r)
	c.native = func(name string) (bool, error) { return name == "stevedore", nil }

	ok, err := c.IsRegistered(context.Background(), "stevedore")
	if err != nil || !ok {
		t.Fatalf("IsRegistered = %v, %v; want true, nil", ok, err)
	}
	if len(r.Calls()) != 0 {
		t.Errorf("native path spawned wsl.exe: %v", r.Calls())
	}
}

func TestImportArgs(t *testing.T) {
	r := &fake.Runner{}
	c := newTestClient(r)

	if err := c.Import(context.Background(), "stevedore", `C:\data`, `C:\app\stevedore.tar.gz`, "2"); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(r.Calls()[0].Args, " ")
	want := `--import stevedore C:\data C:\app\stevedore.tar.gz --version 2`
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestExecAndTerminateArgs(t *testing.T) {
	r := &fake.Runner{Handler: func(_ string, args []string) ([]byte, error) {
		if fake.HasPrefix(args, "--distribution") {
			return []byte("pong\n"), nil
		}
		return nil, nil
	}}
	c := newTestClient(r)

	out, err := c.Exec(context.Background(), "stevedore", "echo", "pong")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "pong\n" {
		t.Errorf("Exec out = %q, want %q", out, "pong\n")
	}
	if err := c.Terminate(context.Background(), "stevedore"); err != nil {
		t.Fatal(err)
	}

	calls := r.Calls()
	if got := strings.Join(calls[0].Args, " "); got != "--distribution stevedore --exec echo pong" {
		t.Errorf("exec args = %q", got)
	}
	if got := strings.Join(calls[1].Args, " "); got != "--terminate stevedore" {
		t.Errorf("terminate args = %q", got)
	}
}

func TestErrorMessageDecoded(t *testing.T) {
	r := &fake.Runner{Handler: func(string, []string) ([]byte, error) {
		return nil, &process.CommandError{
			Name:   "wsl",
			Code:   1,
			Stdout: utf16le(t, "The system cannot find the file specified."),
			Err:    errors.New("exit status 1"),
		}
	}}
	err := newTestClient(r).Import(context.Background(), "stevedore", "d", "a", "2")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "The system cannot find the file specified.") {
		t.Errorf("error not decoded: %q", err.Error())
	}
}

func TestDecodeOutput(t *testing.T) {
	if got := decodeOutput([]byte("plain utf-8\r\n")); got != "plain utf-8\n" {
		t.Errorf("utf-8 = %q", got)
	}
	bom := append([]byte{0xFF, 0xFE}, utf16le(t, "with bom")...)
	if got := decodeOutput(bom); got != "with bom" {
		t.Errorf("bom = %q", got)
	}
	if got := decodeOutput(utf16le(t, "no bom")); got != "no bom" {
		t.Errorf("utf-16 = %q", got)
	}
	if got := decodeOutput(nil); got != "" {
		t.Errorf("nil = %q", got)
	}
}
