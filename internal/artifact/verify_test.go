package artifact

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gzip "github.com/klauspost/compress/gzip"
)

func writeTarball(t *testing.T, files map[string]string) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()

	p := filepath.Join(t.TempDir(), "stevedore.tar.gz")
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return p, buf.Bytes()
}

func sum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func TestVerify_Unpinned(t *testing.T) {
	p, data := writeTarball(t, map[string]string{"./usr/bin/dockerd": "#!/bin/sh\n"})

	rep, err := Verify(p, "/usr/bin/dockerd")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Pinned {
		t.Error("Pinned = true without sidecar")
	}
	if rep.Digest.Hex != sum(data) {
		t.Errorf("Digest = %s, want sha256:%s", rep.Digest, sum(data))
	}
	if rep.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", rep.Size, len(data))
	}
	if rep.Entries != 1 {
		t.Errorf("Entries = %d, want 1", rep.Entries)
	}
}

func TestVerify_PinnedSha256sumFormat(t *testing.T) {
	p, data := writeTarball(t, map[string]string{"etc/os-release": "ID=stevedore\n"})
	if err := os.WriteFile(p+DigestSuffix, []byte(sum(data)+"  stevedore.tar.gz\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rep, err := Verify(p)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Pinned {
		t.Error("Pinned = false, want true")
	}
}

func TestVerify_DigestMismatch(t *testing.T) {
	p, _ := writeTarball(t, map[string]string{"etc/os-release": "ID=stevedore\n"})
	bad := "sha256:" + sum([]byte("something else"))
	if err := os.WriteFile(p+DigestSuffix, []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Verify(p)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err = %v, want ErrDigestMismatch", err)
	}
}

func TestVerify_NotGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "stevedore.tar.gz")
	os.WriteFile(p, []byte("definitely not gzip"), 0644)

	_, err := Verify(p)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestVerify_Truncated(t *testing.T) {
	p, data := writeTarball(t, map[string]string{"big": string(bytes.Repeat([]byte("x"), 64<<10))})
	os.WriteFile(p, data[:len(data)/2], 0644)

	_, err := Verify(p)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestVerify_MissingRequired(t *testing.T) {
	p, _ := writeTarball(t, map[string]string{"etc/os-release": "ID=stevedore\n"})

	_, err := Verify(p, "usr/bin/dockerd")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestVerify_MissingFile(t *testing.T) {
	if _, err := Verify(filepath.Join(t.TempDir(), "absent.tar.gz")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
